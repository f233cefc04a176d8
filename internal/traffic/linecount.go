package traffic

import "github.com/curbsight/curbsight/internal/geom"

// LineCounter tallies tracks crossing a virtual line. A crossing is
// registered when a track's box center changes sides of the line between
// two frames it appears in; the side is the sign of the cross product of
// the line vector and the vector to the center.
type LineCounter struct {
	start, end geom.Point
	lastSide   map[int64]int
	in, out    int
}

// NewLineCounter creates a counter over the segment start..end. Crossing
// from the line's left half-plane to its right counts as IN, the reverse
// as OUT.
func NewLineCounter(start, end geom.Point) *LineCounter {
	return &LineCounter{
		start:    start,
		end:      end,
		lastSide: make(map[int64]int),
	}
}

// AutoCountingLine returns the default counting line for a frame size: a
// horizontal line at 70% of the frame height, oriented so that downward
// travel counts as IN.
func AutoCountingLine(width, height int) (start, end geom.Point) {
	y := float64(height) * 0.7
	return geom.Point{X: 0, Y: y}, geom.Point{X: float64(width), Y: y}
}

func (l *LineCounter) side(p geom.Point) int {
	d := l.end.Sub(l.start)
	v := p.Sub(l.start)
	cross := d.X*v.Y - d.Y*v.X
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

// Update processes one frame of detections and returns how many IN and
// OUT crossings it produced. Detections without a track id are ignored,
// as are centers exactly on the line.
func (l *LineCounter) Update(dets []Detection) (in, out int) {
	for _, d := range dets {
		if d.TrackID < 0 {
			continue
		}
		s := l.side(geom.Point{X: d.Box.CenterX(), Y: d.Box.CenterY()})
		if s == 0 {
			continue
		}
		prev, seen := l.lastSide[d.TrackID]
		l.lastSide[d.TrackID] = s
		if !seen || prev == s {
			continue
		}
		if s > 0 {
			in++
		} else {
			out++
		}
	}
	l.in += in
	l.out += out
	return in, out
}

// Counts returns the cumulative IN and OUT totals.
func (l *LineCounter) Counts() (in, out int) {
	return l.in, l.out
}

// Forget drops the remembered side for a track that left the scene.
func (l *LineCounter) Forget(trackID int64) {
	delete(l.lastSide, trackID)
}

// Reset zeroes the totals and forgets every track.
func (l *LineCounter) Reset() {
	l.in = 0
	l.out = 0
	l.lastSide = make(map[int64]int)
}
