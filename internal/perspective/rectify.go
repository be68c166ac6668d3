package perspective

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/docflat/internal/geom"
)

// TargetSize derives the output rectangle from the corner geometry.
//
// The width is the longer of the top and bottom edges and the height the
// longer of the left and right edges, each rounded to the nearest pixel and
// clamped to at least 1.
func TargetSize(c geom.Corners) (width, height int) {
	width = int(math.Round(math.Max(c.TopEdge(), c.BottomEdge())))
	height = int(math.Round(math.Max(c.LeftEdge(), c.RightEdge())))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// DestinationCorners returns the corners of a width×height rectangle in
// TL, TR, BR, BL order.
func DestinationCorners(width, height int) [4]geom.Point {
	w := float64(width - 1)
	h := float64(height - 1)
	return [4]geom.Point{
		geom.Pt(0, 0),
		geom.Pt(w, 0),
		geom.Pt(w, h),
		geom.Pt(0, h),
	}
}

// Transform bundles the homography for a set of corners with the target size
// it was solved for.
type Transform struct {
	Width   int
	Height  int
	Forward Homography // source → destination
	Inverse Homography // destination → source
}

// NewTransform sizes the target rectangle for c and solves both directions of
// the mapping.
func NewTransform(c geom.Corners) (*Transform, error) {
	if c.Quad().Degenerate() {
		return nil, fmt.Errorf("corners %v: %w", c, ErrDegenerateTransform)
	}

	width, height := TargetSize(c)
	dst := DestinationCorners(width, height)
	if width == 1 || height == 1 {
		// A one-pixel rectangle has collinear destination corners.
		return nil, fmt.Errorf("target size %dx%d: %w", width, height, ErrDegenerateTransform)
	}

	fwd, err := SolveHomography([4]geom.Point(c.Quad()), dst)
	if err != nil {
		return nil, err
	}
	inv, err := fwd.Inverse()
	if err != nil {
		return nil, err
	}

	return &Transform{Width: width, Height: height, Forward: fwd, Inverse: inv}, nil
}

// Rectify resamples src through the inverse homography of c into a new
// image of TargetSize(c).
//
// Each destination pixel (u, v) is mapped back into src and sampled with
// bilinear interpolation. Samples that land outside src take the nearest
// edge pixel, so every destination pixel is populated. src is not modified.
func Rectify(src image.Image, c geom.Corners) (*image.NRGBA, error) {
	t, err := NewTransform(c)
	if err != nil {
		return nil, err
	}
	return t.Warp(src), nil
}

// Warp applies the transform to src.
func (t *Transform) Warp(src image.Image) *image.NRGBA {
	// Clone gives a zero-origin NRGBA copy regardless of the source model.
	in := imaging.Clone(src)
	out := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))

	h := t.Inverse
	for v := 0; v < t.Height; v++ {
		fv := float64(v)
		row := out.Pix[v*out.Stride:]
		for u := 0; u < t.Width; u++ {
			fu := float64(u)
			// w == 0 maps to a point at infinity; the division yields ±Inf
			// (or NaN) and sampleBilinear clamps that to the nearest edge.
			w := h[6]*fu + h[7]*fv + h[8]
			sx := (h[0]*fu + h[1]*fv + h[2]) / w
			sy := (h[3]*fu + h[4]*fv + h[5]) / w
			sampleBilinear(in, sx, sy, row[u*4:u*4+4])
		}
	}
	return out
}

// sampleBilinear writes the interpolated NRGBA value at (x, y) into dst.
// Coordinates outside the image, infinite ones included, clamp to the
// nearest edge; NaN clamps to zero.
func sampleBilinear(img *image.NRGBA, x, y float64, dst []uint8) {
	b := img.Bounds()
	maxX := b.Dx() - 1
	maxY := b.Dy() - 1

	if math.IsNaN(x) {
		x = 0
	}
	if math.IsNaN(y) {
		y = 0
	}
	x = math.Max(0, math.Min(x, float64(maxX)))
	y = math.Max(0, math.Min(y, float64(maxY)))

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, maxX)
	y1 := min(y0+1, maxY)
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := img.Pix[y0*img.Stride+x0*4:]
	p10 := img.Pix[y0*img.Stride+x1*4:]
	p01 := img.Pix[y1*img.Stride+x0*4:]
	p11 := img.Pix[y1*img.Stride+x1*4:]

	for i := 0; i < 4; i++ {
		top := float64(p00[i])*(1-fx) + float64(p10[i])*fx
		bottom := float64(p01[i])*(1-fx) + float64(p11[i])*fx
		val := top*(1-fy) + bottom*fy
		dst[i] = uint8(math.Max(0, math.Min(255, math.Round(val))))
	}
}
