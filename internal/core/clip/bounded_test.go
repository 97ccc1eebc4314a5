package clip

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gowvp/kite/internal/core/frame"
)

func newBoundedForTest(opener *memOpener, max int) (*BoundedRecorder, *sync.WaitGroup, chan Result) {
	var wg sync.WaitGroup
	done := make(chan Result, 1)
	r := NewBoundedRecorder(opener, max, &wg, func(res Result) {
		done <- res
	})
	return r, &wg, done
}

func TestBoundedExactSequence(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 10)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, seqFrames(1, 2)); err != nil {
		t.Fatal(err)
	}
	for _, f := range seqFrames(3, 4) {
		r.Update(f)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	wantSeqs(t, opener.last().frames(), 1, 4)
	res := <-done
	if res.State != StateSaved || res.Frames != 4 {
		t.Fatalf("want saved result with 4 frames, got %+v", res)
	}
	if res.EventID != "ev1" {
		t.Fatalf("event id lost: %+v", res)
	}
}

func TestBoundedAtLimit(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 4)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, seqFrames(1, 2)); err != nil {
		t.Fatal(err)
	}
	// 正好达到上限，不算溢出
	for _, f := range seqFrames(3, 4) {
		r.Update(f)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	wantSeqs(t, opener.last().frames(), 1, 4)
	if res := <-done; res.State != StateSaved {
		t.Fatalf("want saved, got %+v", res)
	}
}

func TestBoundedOverflowDiscardsAll(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 4)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, seqFrames(1, 2)); err != nil {
		t.Fatal(err)
	}
	// 第 5 帧超限，整段丢弃
	for _, f := range seqFrames(3, 5) {
		r.Update(f)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if opener.opens() != 0 {
		t.Fatal("sink must never be opened for an overflowed clip")
	}
	res := <-done
	if res.State != StateDiscarded || res.Reason != "overflowed" {
		t.Fatalf("want discarded/overflowed, got %+v", res)
	}
}

func TestBoundedPrerollOverLimit(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 3)

	path := filepath.Join(t.TempDir(), "b.mp4")
	// 历史快照本身已超限
	if err := r.Start("ev1", path, "mp4", 25, true, seqFrames(1, 5)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if opener.opens() != 0 {
		t.Fatal("sink opened despite oversized snapshot")
	}
	if res := <-done; res.State != StateDiscarded {
		t.Fatalf("want discarded, got %+v", res)
	}
}

func TestBoundedEmptyDiscarded(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 4)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if opener.opens() != 0 {
		t.Fatal("sink opened for an empty clip")
	}
	res := <-done
	if res.State != StateDiscarded || res.Reason != "empty" {
		t.Fatalf("want discarded/empty, got %+v", res)
	}
}

func TestBoundedTerminate(t *testing.T) {
	opener := &memOpener{}
	r, _, _ := newBoundedForTest(opener, 4)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, seqFrames(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := r.Terminate(); err != nil {
		t.Fatal(err)
	}
	if opener.opens() != 0 {
		t.Fatal("terminate must not open a sink")
	}
	if err := r.Finish(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("finish after terminate: want ErrNotRecording, got %v", err)
	}
}

func TestBoundedReusableAfterFinish(t *testing.T) {
	opener := &memOpener{}
	var wg sync.WaitGroup
	results := make(chan Result, 2)
	r := NewBoundedRecorder(opener, 10, &wg, func(res Result) { results <- res })
	dir := t.TempDir()

	if err := r.Start("ev1", filepath.Join(dir, "b1.mp4"), "mp4", 25, true, seqFrames(1, 3)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := r.Start("ev2", filepath.Join(dir, "b2.mp4"), "mp4", 25, true, seqFrames(10, 12)); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if opener.opens() != 2 {
		t.Fatalf("want 2 sinks, got %d", opener.opens())
	}
	for i := 0; i < 2; i++ {
		if res := <-results; res.State != StateSaved {
			t.Fatalf("round %d: %+v", i, res)
		}
	}
}

func TestBoundedStartWhileArmed(t *testing.T) {
	opener := &memOpener{}
	r, _, _ := newBoundedForTest(opener, 4)

	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Start("ev2", path, "mp4", 25, true, nil); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("want ErrAlreadyRecording, got %v", err)
	}
}

func TestBoundedUpdateCopiesOnStart(t *testing.T) {
	opener := &memOpener{}
	r, wg, done := newBoundedForTest(opener, 10)

	preroll := seqFrames(1, 3)
	path := filepath.Join(t.TempDir(), "b.mp4")
	if err := r.Start("ev1", path, "mp4", 25, true, preroll); err != nil {
		t.Fatal(err)
	}
	// 修改调用方切片不影响会话内容
	preroll[0] = &frame.Frame{Seq: 99, Width: 64, Height: 48}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	<-done

	wantSeqs(t, opener.last().frames(), 1, 3)
}
