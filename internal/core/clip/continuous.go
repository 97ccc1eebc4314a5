package clip

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// ContinuousRecorder 触发后持续写盘的录制会话
//
// Start 时把滚动历史的前置帧灌入待写队列并启动专属写协程，
// 之后每帧通过 Update 入队；写协程边录边排空队列，
// 队列为空时小睡一段再查，避免与采集循环抢锁。
// Finish 是同步屏障：返回时文件已完整写出并关闭。
type ContinuousRecorder struct {
	opener SinkOpener
	idle   time.Duration

	mu      sync.Mutex
	st      recState
	pending []*frame.Frame
	sink    SinkWriter
	path    string
	format  string
	fps     int
	color   bool
	width   int
	height  int
	written int
	sinkErr error

	startedAt  time.Time
	terminated atomic.Bool
	wg         sync.WaitGroup
}

// NewContinuousRecorder 创建连续录制会话，idle 为写协程空轮询休眠间隔
func NewContinuousRecorder(opener SinkOpener, idle time.Duration) *ContinuousRecorder {
	if idle <= 0 {
		idle = time.Second
	}
	return &ContinuousRecorder{opener: opener, idle: idle}
}

// Start 进入录制状态：按旧→新灌入前置帧并启动写协程
//
// 有前置帧时立即打开落盘资源（尺寸取第一帧），打开失败同步返回，
// 会话保持空闲；前置帧为空时推迟到收到第一帧再打开，
// 若直到 Finish 都没有任何帧，Finish 返回 ErrNoFrameAvailable
func (r *ContinuousRecorder) Start(path, format string, fps int, color bool, preroll []*frame.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == stateArmed || r.st == stateDraining {
		return ErrAlreadyRecording
	}

	if len(preroll) > 0 {
		first := preroll[0]
		sink, err := r.opener.Open(path, format, fps, color, first.Width, first.Height)
		if err != nil {
			return err
		}
		r.sink = sink
		r.width, r.height = first.Width, first.Height
	} else {
		r.sink = nil
	}

	r.path = path
	r.format = format
	r.fps = fps
	r.color = color
	r.pending = append(r.pending[:0:0], preroll...)
	r.written = 0
	r.sinkErr = nil
	r.startedAt = time.Now()
	r.terminated.Store(false)
	r.st = stateArmed

	r.wg.Go(r.writeLoop)
	return nil
}

// Update 录制中时把帧追加到待写队列，否则什么都不做
func (r *ContinuousRecorder) Update(f *frame.Frame) {
	r.mu.Lock()
	if r.st == stateArmed {
		r.pending = append(r.pending, f)
	}
	r.mu.Unlock()
}

// writeLoop 写协程主循环：队列非空则取最早一帧写盘，
// 队列为空且处于排空状态时退出，否则休眠 idle 后重查
func (r *ContinuousRecorder) writeLoop() {
	for {
		if r.terminated.Load() {
			return
		}

		r.mu.Lock()
		if len(r.pending) > 0 {
			f := r.pending[0]
			r.pending[0] = nil
			r.pending = r.pending[1:]
			r.mu.Unlock()
			r.writeFrame(f)
			continue
		}
		if r.st == stateDraining {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		time.Sleep(r.idle)
	}
}

// writeFrame 落盘单帧，首帧时惰性打开资源
// 写失败只记日志并停止后续写入，片段以短/损坏形式收场
// 只会被写协程调用，或在 Finish 中写协程退出之后调用
func (r *ContinuousRecorder) writeFrame(f *frame.Frame) {
	if r.sinkErr != nil {
		return
	}
	if r.sink == nil {
		sink, err := r.opener.Open(r.path, r.format, r.fps, r.color, f.Width, f.Height)
		if err != nil {
			slog.Error("打开落盘资源失败", "path", r.path, "err", err)
			r.setSinkErr(err)
			return
		}
		r.sink = sink
		r.width, r.height = f.Width, f.Height
	}
	if err := r.sink.Write(f); err != nil {
		slog.Error("写帧失败，放弃本片段后续帧", "path", r.path, "err", err)
		r.setSinkErr(err)
		return
	}
	r.mu.Lock()
	r.written++
	r.mu.Unlock()
}

func (r *ContinuousRecorder) setSinkErr(err error) {
	r.mu.Lock()
	r.sinkErr = err
	r.mu.Unlock()
}

// Finish 结束录制并阻塞到写协程排空退出，
// 随后同步冲刷残留帧、关闭落盘资源
// 对已结束的会话再次调用返回 ErrNotRecording，不会重写文件
func (r *ContinuousRecorder) Finish() error {
	r.mu.Lock()
	if r.st != stateArmed {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.st = stateDraining
	r.mu.Unlock()

	r.wg.Wait()

	// 写协程退出与状态切换之间极短的窗口内可能仍有帧入队，兜底冲刷
	r.mu.Lock()
	rest := r.pending
	r.pending = nil
	r.st = stateTerminated
	r.mu.Unlock()
	for _, f := range rest {
		r.writeFrame(f)
	}

	if r.sink == nil {
		if r.sinkErr != nil {
			return r.sinkErr
		}
		return ErrNoFrameAvailable
	}
	if err := r.sink.Close(); err != nil {
		return err
	}
	return r.sinkErr
}

// Terminate 立即放弃录制：停写协程、不冲刷、关闭资源并删除半成品文件
// 删除失败只记日志
func (r *ContinuousRecorder) Terminate() error {
	r.mu.Lock()
	if r.st != stateArmed && r.st != stateDraining {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.terminated.Store(true)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.pending = nil
	r.st = stateTerminated
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			slog.Warn("关闭落盘资源失败", "path", r.path, "err", err)
		}
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("删除半成品文件失败", "path", r.path, "err", err)
	}
	return nil
}

// Written 已成功写盘的帧数
func (r *ContinuousRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// result 导出本次会话的结果信息
func (r *ContinuousRecorder) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		Mode:      ModeContinuous,
		Path:      r.path,
		Format:    r.format,
		Frames:    r.written,
		Width:     r.width,
		Height:    r.height,
		FPS:       r.fps,
		StartedAt: r.startedAt,
		EndedAt:   time.Now(),
		State:     StateSaved,
	}
	if r.sinkErr != nil {
		res.State = StateFailed
		res.Reason = r.sinkErr.Error()
	}
	return res
}
