package clip

import (
	"errors"
	"fmt"
	"testing"

	"github.com/curbsight/curbsight/internal/traffic"
)

// fakeFrame tracks clone/close bookkeeping so tests can assert ownership.
type fakeFrame struct {
	id     int
	closed bool
	clones *int
}

func (f *fakeFrame) Clone() traffic.Frame {
	if f.clones != nil {
		*f.clones++
	}
	return &fakeFrame{id: f.id, clones: f.clones}
}

func (f *fakeFrame) Close() { f.closed = true }

type fakeSink struct {
	id      string
	frames  []int
	closed  bool
	failOn  int // write index that returns an error, -1 for never
	written int
}

func (s *fakeSink) Write(f traffic.Frame) error {
	if s.failOn >= 0 && s.written == s.failOn {
		return errors.New("disk full")
	}
	s.written++
	s.frames = append(s.frames, f.(*fakeFrame).id)
	return nil
}

func (s *fakeSink) Close() error { s.closed = true; return nil }
func (s *fakeSink) Path() string { return "/clips/" + s.id + ".mp4" }

type sinkLog struct {
	sinks  map[string]*fakeSink
	opened []string
	failOn int
}

func newSinkLog() *sinkLog {
	return &sinkLog{sinks: make(map[string]*fakeSink), failOn: -1}
}

func (l *sinkLog) factory(clipID string) (Sink, error) {
	s := &fakeSink{id: clipID, failOn: l.failOn}
	l.sinks[clipID] = s
	l.opened = append(l.opened, clipID)
	return s, nil
}

func testViolation(track int64) traffic.Violation {
	return traffic.Violation{
		TrackID:   track,
		Type:      traffic.ViolationSpeeding,
		Timestamp: "20260301_080000",
	}
}

func feed(r *Recorder, from, n int) {
	for i := 0; i < n; i++ {
		f := &fakeFrame{id: from + i}
		r.OnFrame(f)
	}
}

func TestRecorderClipLengthWithFullBuffer(t *testing.T) {
	log := newSinkLog()
	r := NewRecorder(30, 5, 5, log.factory, nil) // 150 pre, 150 post

	// Run well past the buffer size so the pre-event window is full.
	feed(r, 0, 300)
	r.OnViolation(testViolation(1))
	feed(r, 300, 150)

	sink := log.sinks[testViolation(1).ClipID()]
	if sink == nil {
		t.Fatal("expected a sink to be opened")
	}
	if !sink.closed {
		t.Fatal("expected the sink closed after the post-event tail")
	}
	if len(sink.frames) != 300 {
		t.Fatalf("expected 150 pre + 150 post = 300 frames, got %d", len(sink.frames))
	}
	// Pre-event window is the 150 frames before the trigger, in order.
	if sink.frames[0] != 150 || sink.frames[149] != 299 {
		t.Errorf("pre window spans %d..%d, want 150..299", sink.frames[0], sink.frames[149])
	}
	// The trigger frame is the first post-event frame.
	if sink.frames[150] != 300 {
		t.Errorf("first post frame is %d, want 300", sink.frames[150])
	}
}

func TestRecorderShortPreBuffer(t *testing.T) {
	log := newSinkLog()
	r := NewRecorder(30, 5, 5, log.factory, nil)

	// Violation on frame 60: only 60 frames buffered.
	feed(r, 0, 60)
	r.OnViolation(testViolation(2))
	feed(r, 60, 150)

	sink := log.sinks[testViolation(2).ClipID()]
	if len(sink.frames) != 210 {
		t.Fatalf("expected 60 pre + 150 post = 210 frames, got %d", len(sink.frames))
	}
	if !sink.closed {
		t.Error("expected the sink closed")
	}
}

func TestRecorderConcurrentClipsAndDedup(t *testing.T) {
	log := newSinkLog()
	r := NewRecorder(10, 1, 2, log.factory, nil) // 10 pre, 20 post

	feed(r, 0, 10)
	v1, v2 := testViolation(1), testViolation(2)
	r.OnViolation(v1)
	r.OnViolation(v1) // same clip id: ignored
	feed(r, 10, 5)
	r.OnViolation(v2) // overlapping second clip
	feed(r, 15, 20)

	if len(log.opened) != 2 {
		t.Fatalf("expected 2 sinks opened, got %v", log.opened)
	}
	s1, s2 := log.sinks[v1.ClipID()], log.sinks[v2.ClipID()]
	if len(s1.frames) != 30 { // 10 pre + 20 post
		t.Errorf("clip 1: got %d frames, want 30", len(s1.frames))
	}
	if len(s2.frames) != 30 { // 10 pre + 20 post
		t.Errorf("clip 2: got %d frames, want 30", len(s2.frames))
	}
	if !s1.closed || !s2.closed {
		t.Error("expected both sinks closed")
	}
}

func TestRecorderSinkOpenFailureSkipsClip(t *testing.T) {
	wantErr := errors.New("no space")
	r := NewRecorder(10, 1, 1, func(string) (Sink, error) { return nil, wantErr }, nil)

	feed(r, 0, 5)
	r.OnViolation(testViolation(3))
	feed(r, 5, 20)

	if got := r.ActiveCount(); got != 0 {
		t.Errorf("expected no active recordings after open failure, got %d", got)
	}
}

func TestRecorderWriteFailureSuppressesCompletion(t *testing.T) {
	log := newSinkLog()
	log.failOn = 3
	var completed []string
	r := NewRecorder(10, 1, 1, log.factory, func(id, path string, v traffic.Violation) {
		completed = append(completed, id)
	})

	feed(r, 0, 10)
	r.OnViolation(testViolation(4))
	feed(r, 10, 10)

	sink := log.sinks[testViolation(4).ClipID()]
	if !sink.closed {
		t.Error("expected failed sink to still be closed")
	}
	if len(completed) != 0 {
		t.Errorf("expected no completion callback for a failed clip, got %v", completed)
	}
	if r.ActiveCount() != 0 {
		t.Errorf("expected failed recording removed, got %d active", r.ActiveCount())
	}
}

func TestRecorderCompleteCallback(t *testing.T) {
	log := newSinkLog()
	type done struct{ id, path string }
	var got []done
	r := NewRecorder(10, 1, 1, log.factory, func(id, path string, v traffic.Violation) {
		got = append(got, done{id, path})
	})

	v := testViolation(5)
	feed(r, 0, 10)
	r.OnViolation(v)
	feed(r, 10, 10)

	if len(got) != 1 {
		t.Fatalf("expected one completion, got %v", got)
	}
	if got[0].id != v.ClipID() {
		t.Errorf("completion id = %q, want %q", got[0].id, v.ClipID())
	}
	if want := fmt.Sprintf("/clips/%s.mp4", v.ClipID()); got[0].path != want {
		t.Errorf("completion path = %q, want %q", got[0].path, want)
	}
}

func TestRecorderBufferEvictionClosesClones(t *testing.T) {
	log := newSinkLog()
	r := NewRecorder(10, 1, 1, log.factory, nil) // buffer cap 10

	clones := 0
	for i := 0; i < 25; i++ {
		r.OnFrame(&fakeFrame{id: i, clones: &clones})
	}
	if clones != 25 {
		t.Fatalf("expected every frame cloned into the buffer, got %d", clones)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRecorderCloseFinalizesInFlight(t *testing.T) {
	log := newSinkLog()
	r := NewRecorder(10, 1, 2, log.factory, nil)

	feed(r, 0, 10)
	v := testViolation(6)
	r.OnViolation(v)
	feed(r, 10, 3) // tail not yet finished
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sink := log.sinks[v.ClipID()]
	if !sink.closed {
		t.Error("expected in-flight sink closed on recorder close")
	}
	if r.ActiveCount() != 0 {
		t.Errorf("expected no active recordings after close, got %d", r.ActiveCount())
	}
}
