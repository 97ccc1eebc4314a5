package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// memSink 记录写入帧序号的内存落盘资源，Open 时创建真实文件
type memSink struct {
	path string

	mu     sync.Mutex
	seqs   []uint64
	closed bool
}

func (s *memSink) Write(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink closed")
	}
	s.seqs = append(s.seqs, f.Seq)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) frames() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

type memOpener struct {
	mu       sync.Mutex
	sinks    []*memSink
	lastW    int
	lastH    int
	failOpen bool
}

func (o *memOpener) Open(path, format string, fps int, color bool, width, height int) (SinkWriter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpen {
		return nil, errors.New("open failed")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	s := &memSink{path: path}
	o.sinks = append(o.sinks, s)
	o.lastW, o.lastH = width, height
	return s, nil
}

func (o *memOpener) last() *memSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sinks) == 0 {
		return nil
	}
	return o.sinks[len(o.sinks)-1]
}

func (o *memOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sinks)
}

func seqFrames(from, to uint64) []*frame.Frame {
	out := make([]*frame.Frame, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, &frame.Frame{Seq: i, Width: 64, Height: 48})
	}
	return out
}

func wantSeqs(t *testing.T, got []uint64, from, to uint64) {
	t.Helper()
	if len(got) != int(to-from+1) {
		t.Fatalf("want %d frames, got %d: %v", to-from+1, len(got), got)
	}
	for i, s := range got {
		if s != from+uint64(i) {
			t.Fatalf("index %d: want seq %d, got %d", i, from+uint64(i), s)
		}
	}
}

func TestContinuousPrerollThenUpdates(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 5)); err != nil {
		t.Fatal(err)
	}
	for _, f := range seqFrames(6, 8) {
		r.Update(f)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}

	sink := opener.last()
	wantSeqs(t, sink.frames(), 1, 8)
	if !sink.closed {
		t.Fatal("sink not closed after finish")
	}
	if opener.lastW != 64 || opener.lastH != 48 {
		t.Fatalf("dims not taken from first pre-roll frame: %dx%d", opener.lastW, opener.lastH)
	}
}

func TestContinuousFinishIsBarrier(t *testing.T) {
	opener := &memOpener{}
	// 大 idle 验证 Finish 不依赖轮询周期对齐也能排空
	r := NewContinuousRecorder(opener, 20*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 50)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	// Finish 返回后全部帧必须已写出
	wantSeqs(t, opener.last().frames(), 1, 50)
}

func TestContinuousFinishTwice(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second finish: want ErrNotRecording, got %v", err)
	}
	if opener.opens() != 1 {
		t.Fatalf("sink reopened on double finish: %d opens", opener.opens())
	}
}

func TestContinuousTerminateRemovesFile(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 5)); err != nil {
		t.Fatal(err)
	}
	if err := r.Terminate(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("output file still present after terminate: %v", err)
	}
}

func TestContinuousLazyOpenOnFirstUpdate(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, nil); err != nil {
		t.Fatal(err)
	}
	if opener.opens() != 0 {
		t.Fatal("sink opened before any frame was available")
	}
	r.Update(&frame.Frame{Seq: 1, Width: 320, Height: 240})
	r.Update(&frame.Frame{Seq: 2, Width: 320, Height: 240})
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wantSeqs(t, opener.last().frames(), 1, 2)
	if opener.lastW != 320 || opener.lastH != 240 {
		t.Fatalf("dims not taken from first supplied frame: %dx%d", opener.lastW, opener.lastH)
	}
}

func TestContinuousNoFrameAtAll(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); !errors.Is(err, ErrNoFrameAvailable) {
		t.Fatalf("want ErrNoFrameAvailable, got %v", err)
	}
	if opener.opens() != 0 {
		t.Fatal("sink should never be opened without frames")
	}
}

func TestContinuousOpenFailureKeepsSessionIdle(t *testing.T) {
	opener := &memOpener{failOpen: true}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 3)); err == nil {
		t.Fatal("want open error from Start")
	}
	// 打开失败后会话未启动，可以重试
	opener.failOpen = false
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 3)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wantSeqs(t, opener.last().frames(), 1, 3)
}

func TestContinuousUpdateWhileWriting(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, time.Millisecond)

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := r.Start(path, "mp4", 25, true, seqFrames(1, 3)); err != nil {
		t.Fatal(err)
	}
	// 写协程运行期间持续喂帧
	for i := uint64(4); i <= 100; i++ {
		r.Update(&frame.Frame{Seq: i, Width: 64, Height: 48})
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wantSeqs(t, opener.last().frames(), 1, 100)
}

func TestContinuousRestartAfterFinish(t *testing.T) {
	opener := &memOpener{}
	r := NewContinuousRecorder(opener, 5*time.Millisecond)
	dir := t.TempDir()

	for i := 1; i <= 2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("clip%d.mp4", i))
		if err := r.Start(path, "mp4", 25, true, seqFrames(1, 3)); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if err := r.Finish(); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if opener.opens() != 2 {
		t.Fatalf("want 2 independent sinks, got %d", opener.opens())
	}
}
