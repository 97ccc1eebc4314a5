// Package frame 定义帧模型与滚动历史缓冲
package frame

import "time"

// Frame 单帧图像数据
// 由采集源产出后即视为只读，所有持有方共享同一份 Data，不得修改
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Color     bool
	Data      []byte
	Timestamp time.Time
}
