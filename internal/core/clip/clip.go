// Package clip 实现事件触发的片段录制引擎
//
// 采集循环持续将最近的帧保留在滚动历史中，外部触发事件后，
// 历史中的前置帧与后续到达的帧一起写入片段文件，
// 磁盘编码的快慢不会反压采集
package clip

import (
	"errors"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// SinkWriter 帧落盘资源，由 SinkOpener 打开
// 同一时刻只有一个写协程调用 Write/Close
type SinkWriter interface {
	Write(f *frame.Frame) error
	Close() error
}

// SinkOpener 打开编码器资源，编码细节对引擎不可见
// 打开失败需同步返回错误，录制会话保持未启动状态
type SinkOpener interface {
	Open(path, format string, fps int, color bool, width, height int) (SinkWriter, error)
}

var (
	// ErrNoFrameAvailable 录制期间始终没有任何帧可用于推断尺寸
	ErrNoFrameAvailable = errors.New("clip: no frame available")
	// ErrAlreadyRecording 会话已处于录制状态
	ErrAlreadyRecording = errors.New("clip: already recording")
	// ErrNotRecording 会话未在录制状态
	ErrNotRecording = errors.New("clip: not recording")
)

// 会话状态机：空闲 → 录制中 → 排空中 → 已结束
type recState int32

const (
	stateIdle recState = iota
	stateArmed
	stateDraining
	stateTerminated
)

// Result 一次录制事件的结果，用于入库与日志
type Result struct {
	EventID   string
	Mode      string
	Name      string
	Path      string
	Format    string
	Frames    int
	Width     int
	Height    int
	FPS       int
	StartedAt time.Time
	EndedAt   time.Time
	// State saved|discarded|failed
	State  string
	Reason string
}

const (
	StateSaved     = "saved"
	StateDiscarded = "discarded"
	StateFailed    = "failed"
)

const (
	ModeContinuous = "continuous"
	ModeBounded    = "bounded"
)
