package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 perspective transform in row-major order with the
// bottom-right element normalized to 1.
type Homography [9]float64

// NewHomography computes the perspective transform mapping the four source
// points onto the four destination points. It solves the standard 8x8
// linear system for the transform coefficients; the calibration points must
// form a proper quadrilateral (no three collinear).
func NewHomography(src, dst [4]Point) (Homography, error) {
	// Each correspondence (x,y) -> (u,v) contributes two rows:
	//   [x y 1 0 0 0 -ux -uy] . h = u
	//   [0 0 0 x y 1 -vx -vy] . h = v
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrCollinear, err)
	}

	var out Homography
	for i := 0; i < 8; i++ {
		out[i] = h.AtVec(i)
	}
	out[8] = 1
	return out, nil
}

// Apply maps p through the transform. The second return value is false when
// p lies on the transform's vanishing line and has no finite image.
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}
