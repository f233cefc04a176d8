// Package clip records short evidence videos around violation events: a
// rolling buffer of the seconds before the trigger plus a fixed tail after
// it, written through a pluggable sink.
package clip

import (
	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/traffic"
)

// Sink receives the frames of one clip. Write is called once per frame in
// presentation order; Close finalizes the clip.
type Sink interface {
	Write(f traffic.Frame) error
	Close() error
	// Path identifies where the finished clip lives (a file path or
	// object key) for downstream handling.
	Path() string
}

// SinkFactory opens a sink for a new clip id.
type SinkFactory func(clipID string) (Sink, error)

// CompleteFunc is called after a clip's sink has been closed.
type CompleteFunc func(clipID, path string, v traffic.Violation)

type recording struct {
	sink       Sink
	violation  traffic.Violation
	framesLeft int
	failed     bool
}

// Recorder keeps a rolling pre-event buffer and drains active recordings
// on every incoming frame. Buffered frames are clones owned by the
// recorder. Not safe for concurrent use; the pipeline serializes calls.
type Recorder struct {
	fps        float64
	preFrames  int
	postFrames int

	buffer     []traffic.Frame // oldest first, cap preFrames
	active     map[string]*recording
	newSink    SinkFactory
	onComplete CompleteFunc
}

// NewRecorder creates a recorder holding preSeconds of lead-in video and
// writing postSeconds of tail after each trigger.
func NewRecorder(fps, preSeconds, postSeconds float64, factory SinkFactory, onComplete CompleteFunc) *Recorder {
	return &Recorder{
		fps:        fps,
		preFrames:  int(fps * preSeconds),
		postFrames: int(fps * postSeconds),
		buffer:     make([]traffic.Frame, 0, int(fps*preSeconds)),
		active:     make(map[string]*recording),
		newSink:    factory,
		onComplete: onComplete,
	}
}

// OnViolation opens a clip for v seeded with the buffered pre-event
// frames. A clip id already being recorded is left untouched. A sink that
// cannot be opened is logged and the clip skipped; the violation itself
// is unaffected.
func (r *Recorder) OnViolation(v traffic.Violation) {
	id := v.ClipID()
	if _, dup := r.active[id]; dup {
		return
	}

	sink, err := r.newSink(id)
	if err != nil {
		monitoring.Logf("clip %s: open sink: %v", id, err)
		return
	}

	rec := &recording{sink: sink, violation: v, framesLeft: r.postFrames}
	for _, f := range r.buffer {
		if err := sink.Write(f); err != nil {
			monitoring.Logf("clip %s: write buffered frame: %v", id, err)
			rec.failed = true
			break
		}
	}
	r.active[id] = rec
	monitoring.Logf("clip %s: recording started (%d buffered, %d to follow)", id, len(r.buffer), r.postFrames)
}

// OnFrame appends a frame to the rolling buffer and to every active
// recording, closing recordings whose post-event tail is complete. The
// recorder clones the frame for the buffer; the caller keeps ownership
// of f.
func (r *Recorder) OnFrame(f traffic.Frame) {
	if len(r.buffer) == cap(r.buffer) && cap(r.buffer) > 0 {
		r.buffer[0].Close()
		copy(r.buffer, r.buffer[1:])
		r.buffer = r.buffer[:len(r.buffer)-1]
	}
	if cap(r.buffer) > 0 {
		r.buffer = append(r.buffer, f.Clone())
	}

	for id, rec := range r.active {
		if !rec.failed {
			if err := rec.sink.Write(f); err != nil {
				monitoring.Logf("clip %s: write frame: %v", id, err)
				rec.failed = true
			}
		}
		rec.framesLeft--
		if rec.framesLeft <= 0 {
			r.finish(id, rec)
		}
	}
}

func (r *Recorder) finish(id string, rec *recording) {
	if err := rec.sink.Close(); err != nil {
		monitoring.Logf("clip %s: close sink: %v", id, err)
	}
	delete(r.active, id)
	if rec.failed {
		return
	}
	monitoring.Logf("clip %s: recording finished (%s)", id, rec.sink.Path())
	if r.onComplete != nil {
		r.onComplete(id, rec.sink.Path(), rec.violation)
	}
}

// ActiveCount reports how many clips are currently being written.
func (r *Recorder) ActiveCount() int {
	return len(r.active)
}

// Close finalizes every in-flight recording and releases the buffered
// frames.
func (r *Recorder) Close() error {
	for id, rec := range r.active {
		r.finish(id, rec)
	}
	for _, f := range r.buffer {
		f.Close()
	}
	r.buffer = r.buffer[:0]
	return nil
}
