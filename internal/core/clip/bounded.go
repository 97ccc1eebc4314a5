package clip

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// BoundedRecorder 短片段录制会话，帧数超过上限则整段丢弃
//
// 触发时快照滚动历史作为初始内容，之后逐帧累积；
// 一旦超出上限即标记溢出并停止累积——截断的"半截片段"
// 被认为比没有片段更糟（过长往往意味着触发器卡住了）。
// Finish 不阻塞调用方：落盘交给一次性后台协程
type BoundedRecorder struct {
	opener SinkOpener
	max    int
	// writers 记录在途的一次性写协程，进程收尾时等待，避免丢失最后的片段
	writers *sync.WaitGroup
	// onDone 一次性写协程结束后回调（含丢弃场景），用于入库
	onDone func(Result)

	mu         sync.Mutex
	st         recState
	pending    []*frame.Frame
	overflowed bool
	eventID    string
	path       string
	format     string
	fps        int
	color      bool
	startedAt  time.Time
}

// NewBoundedRecorder 创建短片段会话
// maxFrames 为单段帧数上限，writers 为进程级一次性写协程登记处
func NewBoundedRecorder(opener SinkOpener, maxFrames int, writers *sync.WaitGroup, onDone func(Result)) *BoundedRecorder {
	return &BoundedRecorder{opener: opener, max: maxFrames, writers: writers, onDone: onDone}
}

// Start 进入录制状态，preroll 为滚动历史快照（旧→新）
func (b *BoundedRecorder) Start(eventID, path, format string, fps int, color bool, preroll []*frame.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st == stateArmed {
		return ErrAlreadyRecording
	}
	b.eventID = eventID
	b.path = path
	b.format = format
	b.fps = fps
	b.color = color
	b.pending = append(b.pending[:0:0], preroll...)
	// 历史容量可能大于片段上限，快照本身就超限时同样按溢出处理
	b.overflowed = len(preroll) > b.max
	b.startedAt = time.Now()
	b.st = stateArmed
	return nil
}

// Update 录制中时累积帧；超出上限则标记溢出，此后帧直接丢弃不再缓存
func (b *BoundedRecorder) Update(f *frame.Frame) {
	b.mu.Lock()
	if b.st == stateArmed && !b.overflowed {
		if len(b.pending)+1 > b.max {
			b.overflowed = true
		} else {
			b.pending = append(b.pending, f)
		}
	}
	b.mu.Unlock()
}

// Finish 结束录制，立即返回
//
// 未溢出时取待写序列的独立副本，交给一次性后台协程打开落盘资源、
// 顺序写出全部帧并关闭；溢出时整段丢弃，落盘资源从未被打开。
// 会话随即回到可复用状态
func (b *BoundedRecorder) Finish() error {
	b.mu.Lock()
	if b.st != stateArmed {
		b.mu.Unlock()
		return ErrNotRecording
	}
	frames := b.pending
	overflowed := b.overflowed
	res := Result{
		EventID:   b.eventID,
		Mode:      ModeBounded,
		Path:      b.path,
		Format:    b.format,
		FPS:       b.fps,
		StartedAt: b.startedAt,
	}
	opener, color := b.opener, b.color
	b.pending = nil
	b.st = stateIdle
	b.mu.Unlock()

	if overflowed {
		slog.Info("片段超长，整段丢弃", "event_id", res.EventID, "max_frames", b.max)
		res.EndedAt = time.Now()
		res.State = StateDiscarded
		res.Reason = "overflowed"
		if b.onDone != nil {
			b.onDone(res)
		}
		return nil
	}
	if len(frames) == 0 {
		res.EndedAt = time.Now()
		res.State = StateDiscarded
		res.Reason = "empty"
		if b.onDone != nil {
			b.onDone(res)
		}
		return nil
	}

	b.writers.Go(func() {
		writeOnce(opener, frames, color, res, b.onDone)
	})
	return nil
}

// Terminate 放弃当前累积的内容，不产生任何输出
func (b *BoundedRecorder) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st != stateArmed {
		return ErrNotRecording
	}
	b.pending = nil
	b.st = stateIdle
	return nil
}

// writeOnce 一次性写协程：打开、顺序写出、关闭
// 尺寸取第一帧；任何失败只体现在结果状态里
func writeOnce(opener SinkOpener, frames []*frame.Frame, color bool, res Result, onDone func(Result)) {
	first := frames[0]
	res.Width, res.Height = first.Width, first.Height

	sink, err := opener.Open(res.Path, res.Format, res.FPS, color, first.Width, first.Height)
	if err != nil {
		slog.Error("打开落盘资源失败", "path", res.Path, "err", err)
		res.EndedAt = time.Now()
		res.State = StateFailed
		res.Reason = err.Error()
		if onDone != nil {
			onDone(res)
		}
		return
	}

	for _, f := range frames {
		if err := sink.Write(f); err != nil {
			slog.Error("写帧失败，片段不完整", "path", res.Path, "err", err)
			res.State = StateFailed
			res.Reason = err.Error()
			break
		}
		res.Frames++
	}
	if err := sink.Close(); err != nil && res.State == "" {
		res.State = StateFailed
		res.Reason = err.Error()
	}
	res.EndedAt = time.Now()
	if res.State == "" {
		res.State = StateSaved
	}
	if onDone != nil {
		onDone(res)
	}
}
