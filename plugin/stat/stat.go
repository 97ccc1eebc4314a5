// Package stat 系统负载采样，基于 gopsutil
package stat

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

type Stats struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemTotal    uint64    `json:"mem_total"`
	MemUsed     uint64    `json:"mem_used"`
	MemPercent  float64   `json:"mem_percent"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskFree    uint64    `json:"disk_free"`
	DiskPercent float64   `json:"disk_percent"`
	SampledAt   time.Time `json:"sampled_at"`
}

// Sample 采样一次系统负载，dir 决定统计哪个挂载点的磁盘用量
// 单项采样失败不影响其它项
func Sample(dir string) *Stats {
	out := Stats{SampledAt: time.Now()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		out.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out.MemTotal = vm.Total
		out.MemUsed = vm.Used
		out.MemPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(dir); err == nil {
		out.DiskTotal = du.Total
		out.DiskFree = du.Free
		out.DiskPercent = du.UsedPercent
	}
	return &out
}

// LoadTop 周期采样并回调，常驻协程使用
func LoadTop(dir string, fn func(m map[string]any)) {
	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()
	for range tick.C {
		s := Sample(dir)
		fn(map[string]any{
			"cpu_percent":  s.CPUPercent,
			"mem_percent":  s.MemPercent,
			"disk_percent": s.DiskPercent,
			"disk_free":    s.DiskFree,
		})
	}
}
