package capture

import (
	"testing"
	"time"

	"github.com/gowvp/kite/internal/core/frame"
)

// chanSource 从通道取帧，通道空时阻塞，模拟会阻塞的采集源
type chanSource struct {
	ch chan *frame.Frame
}

func (s *chanSource) NextFrame() (*frame.Frame, bool) {
	f := <-s.ch
	if f == nil {
		return nil, false
	}
	return f, true
}

func TestDecouplerFIFO(t *testing.T) {
	src := &chanSource{ch: make(chan *frame.Frame, 16)}
	for i := 0; i < 10; i++ {
		src.ch <- &frame.Frame{Seq: uint64(i)}
	}

	d := NewDecoupler(src)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	for i := 0; i < 10; i++ {
		f, ok := d.Read()
		if !ok {
			t.Fatalf("read %d: decoupler closed early", i)
		}
		if f.Seq != uint64(i) {
			t.Fatalf("read %d: want seq %d, got %d", i, i, f.Seq)
		}
	}
}

func TestDecouplerSkipsMisses(t *testing.T) {
	src := &chanSource{ch: make(chan *frame.Frame, 8)}
	src.ch <- &frame.Frame{Seq: 1}
	src.ch <- nil // 采集失败的周期
	src.ch <- &frame.Frame{Seq: 2}

	d := NewDecoupler(src)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	f, _ := d.Read()
	if f.Seq != 1 {
		t.Fatalf("want seq 1, got %d", f.Seq)
	}
	f, _ = d.Read()
	if f.Seq != 2 {
		t.Fatalf("miss not skipped, got seq %d", f.Seq)
	}
}

func TestDecouplerStartTwice(t *testing.T) {
	d := NewDecoupler(&chanSource{ch: make(chan *frame.Frame)})
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()
	if err := d.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestDecouplerStopDrainsThenCloses(t *testing.T) {
	src := &chanSource{ch: make(chan *frame.Frame, 8)}
	src.ch <- &frame.Frame{Seq: 7}

	d := NewDecoupler(src)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	// 等帧进入队列后停止
	for d.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	d.Stop()
	close(src.ch) // 源此后返回 ok=false，采集协程观察到停止标志后退出
	d.Wait()

	f, ok := d.Read()
	if !ok || f.Seq != 7 {
		t.Fatalf("queued frame lost after stop: ok=%v", ok)
	}
	if _, ok := d.Read(); ok {
		t.Fatal("read after drain should report closed")
	}
}
