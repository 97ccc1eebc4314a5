package clip

import (
	"os"
	"testing"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// feedSource 从通道取帧的采集源，通道关闭后按采集失败处理
type feedSource struct {
	ch chan *frame.Frame
}

func (s *feedSource) NextFrame() (*frame.Frame, bool) {
	f, ok := <-s.ch
	if !ok {
		time.Sleep(time.Millisecond)
		return nil, false
	}
	return f, true
}

func newEngineForTest(t *testing.T) (*Engine, *feedSource, *memOpener, chan Result) {
	t.Helper()
	src := &feedSource{ch: make(chan *frame.Frame, 64)}
	opener := &memOpener{}
	results := make(chan Result, 8)

	e := NewEngine(src, opener, EngineConfig{
		Capacity:     5,
		IdleInterval: time.Millisecond,
		MaxFrames:    10,
		StorageDir:   t.TempDir(),
		Format:       "mp4",
		FPS:          25,
		Color:        true,
	})
	e.SetOnDone(func(res Result) { results <- res })
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		close(src.ch)
		e.Close()
	})
	return e, src, opener, results
}

// feed 喂入帧并等待消费循环处理到最后一帧
func feed(t *testing.T, e *Engine, src *feedSource, frames []*frame.Frame) {
	t.Helper()
	for _, f := range frames {
		src.ch <- f
	}
	last := frames[len(frames)-1].Seq
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := e.History().Snapshot()
		if len(snap) > 0 && snap[len(snap)-1].Seq == last {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame %d not consumed in time", last)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineContinuousEvent(t *testing.T) {
	e, src, opener, results := newEngineForTest(t)

	// 容量 5 的历史里只留 f4..f8
	feed(t, e, src, seqFrames(1, 8))

	s, err := e.TriggerContinuous("door")
	if err != nil {
		t.Fatal(err)
	}
	feed(t, e, src, seqFrames(9, 10))
	if err := e.Finish(s.ID); err != nil {
		t.Fatal(err)
	}

	wantSeqs(t, opener.last().frames(), 4, 10)
	res := <-results
	if res.State != StateSaved || res.EventID != s.ID || res.Name != "door" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Frames != 7 {
		t.Fatalf("want 7 frames recorded, got %d", res.Frames)
	}
	if len(e.Sessions()) != 0 {
		t.Fatal("session not removed after finish")
	}
}

func TestEngineBoundedEvent(t *testing.T) {
	e, src, opener, results := newEngineForTest(t)

	feed(t, e, src, seqFrames(1, 3))

	s, err := e.TriggerBounded("motion")
	if err != nil {
		t.Fatal(err)
	}
	feed(t, e, src, seqFrames(4, 5))
	if err := e.Finish(s.ID); err != nil {
		t.Fatal(err)
	}

	res := <-results
	if res.State != StateSaved || res.Mode != ModeBounded || res.Name != "motion" {
		t.Fatalf("unexpected result %+v", res)
	}
	wantSeqs(t, opener.last().frames(), 1, 5)
}

func TestEngineTerminateRemovesOutput(t *testing.T) {
	e, src, _, results := newEngineForTest(t)

	feed(t, e, src, seqFrames(1, 3))

	s, err := e.TriggerContinuous("alarm")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Terminate(s.ID); err != nil {
		t.Fatal(err)
	}

	res := <-results
	if res.State != StateDiscarded || res.Reason != "terminated" || res.Name != "alarm" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(s.Path); !os.IsNotExist(err) {
		t.Fatalf("partial clip still on disk: %v", err)
	}
}

func TestEngineFinishUnknownEvent(t *testing.T) {
	e, _, _, _ := newEngineForTest(t)
	if err := e.Finish("nope"); err != ErrNotRecording {
		t.Fatalf("want ErrNotRecording, got %v", err)
	}
	if err := e.Terminate("nope"); err != ErrNotRecording {
		t.Fatalf("want ErrNotRecording, got %v", err)
	}
}

func TestEngineCloseWaitsForConsumer(t *testing.T) {
	src := &feedSource{ch: make(chan *frame.Frame, 4)}
	e := NewEngine(src, &memOpener{}, EngineConfig{
		Capacity:     5,
		IdleInterval: time.Millisecond,
		StorageDir:   t.TempDir(),
	})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	seen := make(chan uint64, 4)
	e.AddTap("slow", func(f *frame.Frame) {
		seen <- f.Seq
		if f.Seq == 1 {
			<-gate
		}
	})

	fs := seqFrames(1, 2)
	src.ch <- fs[0]
	// 消费循环拿到第一帧后阻塞在观察者上
	if got := <-seen; got != 1 {
		t.Fatalf("want frame 1, got %d", got)
	}
	src.ch <- fs[1]
	// 留时间让采集协程把第二帧排进队列
	time.Sleep(20 * time.Millisecond)
	close(src.ch)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	e.Close()

	// Close 返回时消费循环必须已退出，排队的第二帧已派发完
	select {
	case got := <-seen:
		if got != 2 {
			t.Fatalf("want frame 2, got %d", got)
		}
	default:
		t.Fatal("queued frame not dispatched before Close returned")
	}
}

func TestEngineTap(t *testing.T) {
	e, src, _, _ := newEngineForTest(t)

	seen := make(chan uint64, 8)
	e.AddTap("t1", func(f *frame.Frame) { seen <- f.Seq })
	feed(t, e, src, seqFrames(1, 3))
	e.RemoveTap("t1")

	for want := uint64(1); want <= 3; want++ {
		select {
		case got := <-seen:
			if got != want {
				t.Fatalf("tap order: want %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatal("tap not invoked")
		}
	}
}
