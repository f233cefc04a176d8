package ingest

import (
	"fmt"
	"time"

	"github.com/curbsight/curbsight/internal/traffic"
)

// defaultDetectTimeout bounds how long a frame waits for its detections.
const defaultDetectTimeout = 2 * time.Second

// Detector adapts the listener's frame queue to the pipeline's detector
// contract. The collaborator tags each message with the frame index it
// analyzed; messages for frames the pipeline already passed are discarded
// and a message from the future is held until the pipeline catches up.
// Not safe for concurrent use; only the pipeline worker calls Detect.
type Detector struct {
	frames  <-chan FrameMessage
	timeout time.Duration
	pending *FrameMessage
}

// NewDetector wraps the listener. A zero timeout uses the default.
func NewDetector(l *Listener, timeout time.Duration) *Detector {
	if timeout == 0 {
		timeout = defaultDetectTimeout
	}
	return &Detector{frames: l.Frames(), timeout: timeout}
}

// Detect returns the detections reported for frameIndex. It returns an
// empty result when the collaborator has skipped past this frame, and an
// error when nothing arrives within the timeout.
func (d *Detector) Detect(_ traffic.Frame, frameIndex int) ([]traffic.Detection, error) {
	if d.pending != nil {
		msg := *d.pending
		switch {
		case msg.FrameIndex > frameIndex:
			return nil, nil
		case msg.FrameIndex == frameIndex:
			d.pending = nil
			return msg.Detections, nil
		}
		d.pending = nil
	}

	deadline := time.NewTimer(d.timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-d.frames:
			switch {
			case msg.FrameIndex == frameIndex:
				return msg.Detections, nil
			case msg.FrameIndex > frameIndex:
				d.pending = &msg
				return nil, nil
			}
			// Stale frame, keep draining.
		case <-deadline.C:
			return nil, fmt.Errorf("no detections for frame %d within %v", frameIndex, d.timeout)
		}
	}
}
