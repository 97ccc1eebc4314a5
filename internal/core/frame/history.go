package frame

import "sync"

// History 固定容量的滚动历史，保留最近 N 帧，写满后覆盖最旧帧
// 采集循环单协程写入，录制触发时通过 Snapshot 取独立副本作为前置片段
type History struct {
	mu    sync.Mutex
	buf   []*Frame
	head  int // 下一个写入位置
	count int
}

// NewHistory 创建容量为 capacity 的滚动历史
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]*Frame, capacity)}
}

// Push 追加一帧，写满后覆盖最旧帧，永不失败
func (h *History) Push(f *Frame) {
	h.mu.Lock()
	h.buf[h.head] = f
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	h.mu.Unlock()
}

// Snapshot 按时间顺序（旧→新）返回当前内容的独立副本
// 返回的切片与内部存储无共享，录制协程可安全持有
func (h *History) Snapshot() []*Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Frame, 0, h.count)
	start := h.head - h.count
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

// Len 当前帧数
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Cap 容量
func (h *History) Cap() int {
	return len(h.buf)
}
