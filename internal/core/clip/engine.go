package clip

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/kite/internal/core/capture"
	"github.com/gowvp/kite/internal/core/frame"
	"github.com/ixugo/goddd/pkg/conc"
)

// EngineConfig 引擎运行参数
type EngineConfig struct {
	// Capacity 滚动历史容量，即触发时可回溯的最大帧数
	Capacity int
	// IdleInterval 连续录制写协程的空轮询休眠间隔
	IdleInterval time.Duration
	// MaxFrames 短片段模式帧数上限
	MaxFrames  int
	StorageDir string
	Format     string
	FPS        int
	Color      bool
}

// Session 一次触发事件对应的录制会话
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`

	cont  *ContinuousRecorder
	bound *BoundedRecorder
}

func (s *Session) update(f *frame.Frame) {
	if s.cont != nil {
		s.cont.Update(f)
		return
	}
	s.bound.Update(f)
}

// Engine 录制引擎：独占消费解耦器输出，
// 每帧先进滚动历史，再分发给所有在途录制会话
type Engine struct {
	cfg    EngineConfig
	opener SinkOpener

	history  *frame.History
	dec      *capture.Decoupler
	sessions *conc.Map[string, *Session]
	taps     *conc.Map[string, func(*frame.Frame)]

	// writers 登记短片段模式的一次性写协程，Close 时等待它们收尾
	writers sync.WaitGroup
	onDone  func(Result)

	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// NewEngine 创建引擎，src 为采集源，opener 为落盘资源工厂
func NewEngine(src capture.Source, opener SinkOpener, cfg EngineConfig) *Engine {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 200
	}
	if cfg.Format == "" {
		cfg.Format = "mp4"
	}
	return &Engine{
		cfg:      cfg,
		opener:   opener,
		history:  frame.NewHistory(cfg.Capacity),
		dec:      capture.NewDecoupler(src),
		sessions: conc.NewMap[string, *Session](),
		taps:     conc.NewMap[string, func(*frame.Frame)](),
	}
}

// SetOnDone 注册录制结果回调（入库），需在 Start 前调用
func (e *Engine) SetOnDone(fn func(Result)) {
	e.onDone = fn
}

// Start 启动采集协程与消费循环
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already started")
	}
	if err := os.MkdirAll(e.cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	if err := e.dec.Start(); err != nil {
		return err
	}
	e.wg.Go(e.run)
	slog.Info("录制引擎已启动",
		"capacity", e.cfg.Capacity,
		"max_frames", e.cfg.MaxFrames,
		"storage_dir", e.cfg.StorageDir,
	)
	return nil
}

// run 消费循环：同一协程内先推历史再分发会话，
// 保证触发瞬间的历史快照与后续 Update 序列无缝衔接
func (e *Engine) run() {
	for {
		f, ok := e.dec.Read()
		if !ok {
			return
		}
		e.history.Push(f)
		e.taps.Range(func(_ string, fn func(*frame.Frame)) bool {
			fn(f)
			return true
		})
		e.sessions.Range(func(_ string, s *Session) bool {
			s.update(f)
			return true
		})
	}
}

// TriggerContinuous 触发连续录制事件，返回事件 ID
func (e *Engine) TriggerContinuous(name string) (*Session, error) {
	id := uuid.NewString()
	path := e.clipPath(name, id)
	rec := NewContinuousRecorder(e.opener, e.cfg.IdleInterval)
	if err := rec.Start(path, e.cfg.Format, e.cfg.FPS, e.cfg.Color, e.history.Snapshot()); err != nil {
		return nil, err
	}
	s := &Session{ID: id, Mode: ModeContinuous, Name: name, Path: path, StartedAt: time.Now(), cont: rec}
	e.sessions.Store(id, s)
	slog.Info("触发连续录制", "event_id", id, "path", path, "preroll", e.history.Len())
	return s, nil
}

// TriggerBounded 触发短片段录制事件，返回事件 ID
func (e *Engine) TriggerBounded(name string) (*Session, error) {
	id := uuid.NewString()
	path := e.clipPath(name, id)
	// 结果在后台写协程里产出，会话名在这里补齐
	done := func(res Result) {
		res.Name = name
		if e.onDone != nil {
			e.onDone(res)
		}
	}
	rec := NewBoundedRecorder(e.opener, e.cfg.MaxFrames, &e.writers, done)
	if err := rec.Start(id, path, e.cfg.Format, e.cfg.FPS, e.cfg.Color, e.history.Snapshot()); err != nil {
		return nil, err
	}
	s := &Session{ID: id, Mode: ModeBounded, Name: name, Path: path, StartedAt: time.Now(), bound: rec}
	e.sessions.Store(id, s)
	slog.Info("触发短片段录制", "event_id", id, "path", path, "preroll", e.history.Len())
	return s, nil
}

// Finish 正常结束事件
// 连续模式阻塞到文件完整落盘；短片段模式立即返回，落盘在后台完成
func (e *Engine) Finish(id string) error {
	s, ok := e.sessions.Load(id)
	if !ok {
		return ErrNotRecording
	}
	e.sessions.Delete(id)

	if s.cont != nil {
		err := s.cont.Finish()
		res := s.cont.result()
		res.EventID = id
		res.Name = s.Name
		switch {
		case err == ErrNoFrameAvailable:
			res.State = StateDiscarded
			res.Reason = "no frame"
		case err != nil:
			res.State = StateFailed
			res.Reason = err.Error()
		}
		if e.onDone != nil {
			e.onDone(res)
		}
		return err
	}
	return s.bound.Finish()
}

// Terminate 放弃事件，丢弃在途输出
func (e *Engine) Terminate(id string) error {
	s, ok := e.sessions.Load(id)
	if !ok {
		return ErrNotRecording
	}
	e.sessions.Delete(id)

	var err error
	if s.cont != nil {
		err = s.cont.Terminate()
	} else {
		err = s.bound.Terminate()
	}
	if err != nil {
		return err
	}
	if e.onDone != nil {
		e.onDone(Result{
			EventID:   id,
			Mode:      s.Mode,
			Name:      s.Name,
			Path:      s.Path,
			StartedAt: s.StartedAt,
			EndedAt:   time.Now(),
			State:     StateDiscarded,
			Reason:    "terminated",
		})
	}
	slog.Info("事件已放弃", "event_id", id)
	return nil
}

// Sessions 在途事件列表
func (e *Engine) Sessions() []*Session {
	out := make([]*Session, 0, 4)
	e.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

// AddTap 注册帧观察者，由消费循环同步调用，fn 不可阻塞
func (e *Engine) AddTap(id string, fn func(*frame.Frame)) {
	e.taps.Store(id, fn)
}

// RemoveTap 移除帧观察者
func (e *Engine) RemoveTap(id string) {
	e.taps.Delete(id)
}

// History 只读访问滚动历史（快照）
func (e *Engine) History() *frame.History {
	return e.history
}

// Close 收尾：停止采集、结束在途事件、等待全部一次性写协程完成
// 调用前应先停止采集源，否则解耦器可能仍阻塞在源读取上
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.dec.Stop()
	// 解耦器停止且队列耗尽后 Read 返回 false，消费循环随之退出；
	// 等它把剩余帧派发完再收尾会话
	e.wg.Wait()

	e.sessions.Range(func(id string, _ *Session) bool {
		if err := e.Finish(id); err != nil {
			slog.Warn("收尾事件失败", "event_id", id, "err", err)
		}
		return true
	})
	e.writers.Wait()
	slog.Info("录制引擎已关闭")
}

// clipPath 生成片段文件路径：时间戳 + 事件短 ID
func (e *Engine) clipPath(name, id string) string {
	short := strings.ReplaceAll(id, "-", "")[:8]
	base := fmt.Sprintf("%s_%s.%s", time.Now().Format("20060102_150405"), short, e.cfg.Format)
	if name != "" {
		base = name + "_" + base
	}
	return filepath.Join(e.cfg.StorageDir, base)
}
