// Package capture 将采集源的读取延迟与下游处理解耦
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gowvp/kite/internal/core/frame"
)

// Source 采集源，NextFrame 可能阻塞
// 返回 ok=false 表示本次未取到帧，该周期被静默跳过
type Source interface {
	NextFrame() (*frame.Frame, bool)
}

// Decoupler 由单个后台协程持续从采集源取帧，写入无界 FIFO
// 下游消费再慢也不会反压采集；Read 阻塞直到有帧可取
type Decoupler struct {
	src Source

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*frame.Frame
	closed bool

	stopped atomic.Bool
	started atomic.Bool
	wg      sync.WaitGroup
}

// NewDecoupler 创建解耦器，需调用 Start 启动采集协程
func NewDecoupler(src Source) *Decoupler {
	d := &Decoupler{src: src}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start 启动唯一的后台采集协程
func (d *Decoupler) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("capture decoupler already started")
	}
	d.wg.Go(d.loop)
	return nil
}

func (d *Decoupler) loop() {
	defer func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.cond.Broadcast()
	}()

	for !d.stopped.Load() {
		f, ok := d.src.NextFrame()
		if !ok {
			// 采集失败静默跳过，不重试不上报
			continue
		}
		d.mu.Lock()
		d.queue = append(d.queue, f)
		d.mu.Unlock()
		d.cond.Signal()
	}
}

// Read 阻塞直到取得最早的未读帧（FIFO）
// 解耦器停止且队列耗尽后返回 ok=false
func (d *Decoupler) Read() (*frame.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 {
		if d.closed {
			return nil, false
		}
		d.cond.Wait()
	}
	f := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return f, true
}

// Stop 置停止标志后立即返回
// 采集协程可能正阻塞在源读取上，停止后至多还会入队一帧，
// 这是有意保留的简化，不做即时取消
func (d *Decoupler) Stop() {
	d.stopped.Store(true)
}

// Wait 等待采集协程退出，供进程收尾使用
func (d *Decoupler) Wait() {
	d.wg.Wait()
}

// Pending 当前未读帧数
func (d *Decoupler) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
