package traffic

import (
	"math"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/units"
)

// posSample is one perspective-corrected position observation.
type posSample struct {
	pos   geom.Point // real-world meters
	frame int
}

// SpeedEstimator computes smoothed per-track speeds. Image-space centers
// are mapped to real-world meters through a fixed perspective transform
// computed once at construction; each track keeps a one-second window of
// transformed positions and the speed is the windowed displacement divided
// by elapsed time. Windowed rather than instantaneous displacement smooths
// detector and tracker jitter, and the full 2D displacement (not a single
// road-axis component) keeps curved paths honest.
type SpeedEstimator struct {
	fps       float64
	transform geom.Homography
	windows   *ringArena[posSample]
}

// NewSpeedEstimator builds an estimator from four calibration image points
// and their real-world positions in meters. fps sets the sample-window
// capacity (one second of frames).
func NewSpeedEstimator(src, dst [4]geom.Point, fps float64) (*SpeedEstimator, error) {
	h, err := geom.NewHomography(src, dst)
	if err != nil {
		return nil, err
	}
	return &SpeedEstimator{
		fps:       fps,
		transform: h,
		windows:   newRingArena[posSample](int(fps)),
	}, nil
}

// Update appends the track's current center to its sample window and
// returns the smoothed speed in km/h. The second return value is false
// while the window holds fewer than half a second of samples, or when the
// window spans zero elapsed time; callers treat that as speed 0.
func (e *SpeedEstimator) Update(trackID int64, center geom.Point, frameIndex int) (float64, bool) {
	real, ok := e.transform.Apply(center)
	if !ok {
		return 0, false
	}

	w := e.windows.Get(trackID)
	w.Push(posSample{pos: real, frame: frameIndex})

	// Need at least half a second of data for a stable reading.
	if float64(w.Len()) < e.fps/2 {
		return 0, false
	}

	start := w.Oldest()
	end := w.Newest()

	elapsed := float64(end.frame-start.frame) / e.fps
	if elapsed <= 0 {
		return 0, false
	}

	meters := math.Hypot(end.pos.X-start.pos.X, end.pos.Y-start.pos.Y)
	return units.FromMPS(meters/elapsed, units.KMH), true
}

// Forget drops the sample window for a track that has left the scene.
func (e *SpeedEstimator) Forget(trackID int64) {
	e.windows.Forget(trackID)
}

// Reset drops all per-track sample windows.
func (e *SpeedEstimator) Reset() {
	e.windows.Reset()
}

// TrackCount returns the number of tracks with live sample windows.
func (e *SpeedEstimator) TrackCount() int { return e.windows.Len() }
