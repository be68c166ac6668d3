// Package perspective maps a detected page quadrilateral onto an upright
// rectangle.
//
// The package derives the target rectangle from the quadrilateral's side
// lengths, solves the projective transform (homography) between the two
// four-point sets, and resamples the source image through its inverse.
//
// # Homography
//
// A homography is stored as a row-major 3×3 matrix with h[8] fixed to 1,
// leaving 8 degrees of freedom. Four point correspondences contribute two
// equations each, so the 8×8 linear system has a unique solution whenever
// no three source points (and no three destination points) are collinear.
//
// # Errors
//
// Every failure caused by degenerate geometry matches ErrDegenerateTransform
// under errors.Is.
package perspective

import (
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/docflat/internal/geom"
)

// ErrDegenerateTransform is returned when the source or destination points
// are collinear or coincident and no projective transform exists.
var ErrDegenerateTransform = errors.New("degenerate transform")

// pivotEpsilon is the smallest pivot, relative to the largest coefficient in
// the system, accepted during elimination.
const pivotEpsilon = 1e-12

// Homography is a projective transform in row-major order:
//
//	| h0 h1 h2 |
//	| h3 h4 h5 |
//	| h6 h7 h8 |
type Homography [9]float64

// Identity is the transform that maps every point to itself.
var Identity = Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}

// SolveHomography returns the unique transform taking src[i] to dst[i] for
// all four i.
//
// For each correspondence (x, y) → (u, v) the unknowns a..h satisfy
//
//	a·x + b·y + c − g·x·u − h·y·u = u
//	d·x + e·y + f − g·x·v − h·y·v = v
//
// which is solved by Gaussian elimination with partial pivoting.
func SolveHomography(src, dst [4]geom.Point) (Homography, error) {
	if geom.Quad(src).Degenerate() {
		return Homography{}, fmt.Errorf("source points %v: %w", src, ErrDegenerateTransform)
	}
	if geom.Quad(dst).Degenerate() {
		return Homography{}, fmt.Errorf("destination points %v: %w", dst, ErrDegenerateTransform)
	}

	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
	}

	sol, err := solve8(a)
	if err != nil {
		return Homography{}, err
	}

	h := Homography{sol[0], sol[1], sol[2], sol[3], sol[4], sol[5], sol[6], sol[7], 1}
	if math.Abs(h.Det()) < pivotEpsilon {
		return Homography{}, fmt.Errorf("singular homography: %w", ErrDegenerateTransform)
	}
	return h, nil
}

// solve8 reduces the augmented 8×9 system in place and back-substitutes.
func solve8(a [8][9]float64) ([8]float64, error) {
	var scale float64
	for r := range a {
		for c := 0; c < 8; c++ {
			scale = math.Max(scale, math.Abs(a[r][c]))
		}
	}
	if scale == 0 {
		return [8]float64{}, fmt.Errorf("empty system: %w", ErrDegenerateTransform)
	}

	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < pivotEpsilon*scale {
			return [8]float64{}, fmt.Errorf("singular system at column %d: %w", col, ErrDegenerateTransform)
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := col + 1; r < 8; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < 9; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var x [8]float64
	for r := 7; r >= 0; r-- {
		sum := a[r][8]
		for c := r + 1; c < 8; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

// Det is the determinant of the 3×3 matrix.
func (h Homography) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// Inverse returns the inverse transform, normalised so that the last element
// is 1 when possible.
func (h Homography) Inverse() (Homography, error) {
	det := h.Det()
	if math.Abs(det) < pivotEpsilon {
		return Homography{}, fmt.Errorf("non-invertible homography: %w", ErrDegenerateTransform)
	}

	// Adjugate (transpose of the cofactor matrix) divided by the determinant.
	inv := Homography{
		h[4]*h[8] - h[5]*h[7], h[2]*h[7] - h[1]*h[8], h[1]*h[5] - h[2]*h[4],
		h[5]*h[6] - h[3]*h[8], h[0]*h[8] - h[2]*h[6], h[2]*h[3] - h[0]*h[5],
		h[3]*h[7] - h[4]*h[6], h[1]*h[6] - h[0]*h[7], h[0]*h[4] - h[1]*h[3],
	}
	norm := det
	if math.Abs(inv[8]) > pivotEpsilon {
		norm = inv[8]
	}
	for i := range inv {
		inv[i] /= norm
	}
	return inv, nil
}

// Apply maps p through the transform. ok is false when p lies on the
// transform's line at infinity.
func (h Homography) Apply(p geom.Point) (q geom.Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return geom.Point{}, false
	}
	return geom.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}
