// Package traffic implements the violation-monitoring pipeline: per-track
// speed estimation over a fixed perspective transform, zone-aware behavior
// classification with cooldown deduplication, line counting, and the
// sequential frame-loop orchestrator that ties them together.
package traffic

import "fmt"

// ViolationType enumerates the typed violation events the pipeline emits.
type ViolationType string

const (
	ViolationSpeeding       ViolationType = "SPEEDING"
	ViolationIllegalParking ViolationType = "ILLEGAL_PARKING"
	ViolationCrookedParking ViolationType = "CROOKED_PARKING"
	ViolationSuddenStop     ViolationType = "SUDDEN_STOP"
	ViolationLoitering      ViolationType = "LOITERING"
	ViolationWrongWay       ViolationType = "WRONG_WAY"

	// Types reported by a specialist upstream detector rather than the
	// behavior classifier. They arrive with the sentinel track id.
	ViolationTurning ViolationType = "TURNING"
	ViolationUTurn   ViolationType = "U_TURN"
)

// DetectorTrackID is the sentinel track id for violations reported directly
// by an upstream detector with no matched track.
const DetectorTrackID int64 = -1

// knownTypes lists every violation type the pipeline accepts. Unknown types
// from upstream classifiers are dropped, not propagated.
var knownTypes = map[ViolationType]bool{
	ViolationSpeeding:       true,
	ViolationIllegalParking: true,
	ViolationCrookedParking: true,
	ViolationSuddenStop:     true,
	ViolationLoitering:      true,
	ViolationWrongWay:       true,
	ViolationTurning:        true,
	ViolationUTurn:          true,
}

// KnownViolationType reports whether t is a type the pipeline understands.
func KnownViolationType(t ViolationType) bool { return knownTypes[t] }

// Violation is a single emitted violation event. It is immutable after
// creation; only the classifier's active-list copy has its VTime refreshed
// while the same (track, type) condition stays live.
type Violation struct {
	TrackID    int64         `json:"tracker_id"`
	Type       ViolationType `json:"type"`
	FrameIndex int           `json:"frame_index"`
	// Timestamp is the wall-clock trigger instant, formatted for filenames.
	Timestamp string `json:"timestamp"`
	// VTime is virtual time: FrameIndex / fps. Used for UI expiry and
	// persistence bookkeeping independent of the wall clock.
	VTime float64 `json:"v_time"`
	// SpeedKMH is the track speed at the trigger instant, zero when the
	// violation is not speed-related.
	SpeedKMH float64 `json:"speed_kmh,omitempty"`
}

// ClipID returns the deterministic evidence-clip identifier for the
// violation: {type}_ID{track}_{timestamp}.
func (v Violation) ClipID() string {
	return fmt.Sprintf("%s_ID%d_%s", v.Type, v.TrackID, v.Timestamp)
}

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// CenterX returns the horizontal center of the box.
func (b BoundingBox) CenterX() float64 { return (b.X1 + b.X2) / 2 }

// CenterY returns the vertical center of the box.
func (b BoundingBox) CenterY() float64 { return (b.Y1 + b.Y2) / 2 }

// Detection is one tracked object in one frame, as delivered by the
// external detector/tracker collaborator. TrackID is stable across frames
// for the same physical object.
type Detection struct {
	TrackID int64       `json:"track_id"`
	ClassID int         `json:"class_id"`
	Box     BoundingBox `json:"box"`
}

// MonitoringMode selects which behavior rules are active.
type MonitoringMode string

const (
	ModeRoad    MonitoringMode = "ROAD"
	ModeParking MonitoringMode = "PARKING"
	ModeBoth    MonitoringMode = "BOTH"
)

// ModeHint supplies the monitoring mode for a feed. The production
// implementation is static configuration; a scene-analysis collaborator may
// substitute a heuristic guess (road vs parking lot) behind this interface.
type ModeHint interface {
	Mode() MonitoringMode
}

// StaticMode is the trivial ModeHint: the configured mode.
type StaticMode MonitoringMode

// Mode returns the configured monitoring mode.
func (m StaticMode) Mode() MonitoringMode { return MonitoringMode(m) }

// Frame is one decoded video frame. Clone must deep-copy the pixel data so
// buffered frames survive in-place reuse by the decoder; Close releases any
// native resources and must be called exactly once per owned frame.
type Frame interface {
	Clone() Frame
	Close()
}

// StreamInfo describes an open video stream.
type StreamInfo struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
}

// FrameSource produces decoded frames in presentation order. Next returns
// io.EOF once the stream is exhausted; Rewind restarts a seekable source for
// loop playback.
type FrameSource interface {
	Next() (Frame, error)
	Rewind() error
	Info() StreamInfo
	Close() error
}

// Detector is the external detection/tracking collaborator contract: per
// frame it returns zero or more detections restricted to the caller's class
// allowlist, with track ids stable across frames.
type Detector interface {
	Detect(f Frame, frameIndex int) ([]Detection, error)
}

// ClipRecorder consumes raw frames and newly emitted violations to produce
// evidence clips. Violations for a frame are delivered before the frame
// itself so the pre-event snapshot excludes the trigger frame.
type ClipRecorder interface {
	OnViolation(v Violation)
	OnFrame(f Frame)
	Close() error
}
