package detection

import (
	"errors"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/docflat/internal/geom"
)

// ErrNoDocumentBoundary is returned when no contour simplifies to exactly
// four vertices.
var ErrNoDocumentBoundary = errors.New("no document boundary found")

// DefaultEpsilonFraction is the polygon-approximation tolerance as a
// fraction of each contour's perimeter.
const DefaultEpsilonFraction = 0.02

// QuadSelector chooses the page boundary among traced contours.
//
// Implementations must not modify the contours and must return an error
// matching ErrNoDocumentBoundary when no candidate qualifies.
type QuadSelector interface {
	SelectQuad(contours []Contour) (geom.Quad, error)
}

// Candidate describes one contour as seen by a selector.
type Candidate struct {
	// Index is the contour's position in the FindContours result.
	Index int `json:"index"`

	// Area is the enclosed area in square pixels.
	Area float64 `json:"area"`

	// Perimeter is the closed arc length in pixels.
	Perimeter float64 `json:"perimeter"`

	// Vertices is the simplified polygon.
	Vertices []image.Point `json:"vertices"`

	// Rectangularity is 1 − mean |cos θ| over the interior angles of a
	// convex four-vertex polygon: 1 for a rectangle, 0 for anything that is
	// not a convex quad.
	Rectangularity float64 `json:"rectangularity"`
}

// IsQuad reports whether the simplified polygon has exactly four vertices.
func (c Candidate) IsQuad() bool {
	return len(c.Vertices) == 4
}

// Quad returns the four vertices. It must only be called when IsQuad is true.
func (c Candidate) Quad() geom.Quad {
	var q geom.Quad
	for i, p := range c.Vertices[:4] {
		q[i] = geom.FromImagePoint(p)
	}
	return q
}

// Candidates ranks contours by enclosed area, largest first, and simplifies
// each with a tolerance of epsilonFraction × perimeter. Contours of equal
// area keep their tracing order.
func Candidates(contours []Contour, epsilonFraction float64) []Candidate {
	out := make([]Candidate, len(contours))
	for i, c := range contours {
		perimeter := c.Perimeter()
		cand := Candidate{
			Index:     i,
			Area:      c.Area(),
			Perimeter: perimeter,
			Vertices:  ApproxPolyDP(c.Points, epsilonFraction*perimeter, true),
		}
		if cand.IsQuad() && IsConvex(cand.Vertices) {
			cand.Rectangularity = 1 - meanAbsCos(cand.Vertices)
		}
		out[i] = cand
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Area > out[j].Area
	})
	return out
}

// LargestQuadSelector accepts the largest-area contour whose simplified
// polygon has exactly four vertices. The search stops at the first match.
//
// This works when the page is the dominant quadrilateral in frame and fails
// on cluttered backgrounds or partially occluded pages.
type LargestQuadSelector struct {
	// EpsilonFraction is the approximation tolerance relative to perimeter.
	// Zero means DefaultEpsilonFraction.
	EpsilonFraction float64
}

// SelectQuad implements QuadSelector.
func (s LargestQuadSelector) SelectQuad(contours []Contour) (geom.Quad, error) {
	eps := s.EpsilonFraction
	if eps <= 0 {
		eps = DefaultEpsilonFraction
	}

	order := make([]int, len(contours))
	areas := make([]float64, len(contours))
	for i, c := range contours {
		order[i] = i
		areas[i] = c.Area()
	}
	sort.SliceStable(order, func(i, j int) bool {
		return areas[order[i]] > areas[order[j]]
	})

	// Simplify lazily: most images match on the first few contours.
	for _, idx := range order {
		c := contours[idx]
		approx := ApproxPolyDP(c.Points, eps*c.Perimeter(), true)
		if len(approx) == 4 {
			return Candidate{Vertices: approx}.Quad(), nil
		}
	}
	return geom.Quad{}, ErrNoDocumentBoundary
}

// RectangularitySelector scores every convex four-vertex candidate by
// area × (1 − mean |cos θ|) over its interior angles and returns the best,
// so a smaller but squarer page can beat a larger skewed shape.
type RectangularitySelector struct {
	// EpsilonFraction is the approximation tolerance relative to perimeter.
	// Zero means DefaultEpsilonFraction.
	EpsilonFraction float64

	// MinArea discards candidates enclosing fewer square pixels.
	MinArea float64
}

// SelectQuad implements QuadSelector.
func (s RectangularitySelector) SelectQuad(contours []Contour) (geom.Quad, error) {
	eps := s.EpsilonFraction
	if eps <= 0 {
		eps = DefaultEpsilonFraction
	}

	var best geom.Quad
	bestScore := 0.0
	found := false
	for _, c := range Candidates(contours, eps) {
		if c.Rectangularity == 0 || c.Area < s.MinArea {
			continue
		}
		score := c.Area * c.Rectangularity
		if !found || score > bestScore {
			best = c.Quad()
			bestScore = score
			found = true
		}
	}
	if !found {
		return geom.Quad{}, ErrNoDocumentBoundary
	}
	return best, nil
}

// meanAbsCos averages |cos| of the interior angles of a closed polygon;
// 0 for a rectangle.
func meanAbsCos(pts []image.Point) float64 {
	n := len(pts)
	var sum float64
	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		ax, ay := float64(prev.X-cur.X), float64(prev.Y-cur.Y)
		bx, by := float64(next.X-cur.X), float64(next.Y-cur.Y)
		la := math.Hypot(ax, ay)
		lb := math.Hypot(bx, by)
		if la == 0 || lb == 0 {
			sum++
			continue
		}
		sum += math.Abs(ax*bx+ay*by) / (la * lb)
	}
	return sum / float64(n)
}

// FindDocumentQuadrilateral traces the borders of an edge map and hands
// them to sel. A nil selector means LargestQuadSelector with the default
// tolerance.
func FindDocumentQuadrilateral(edges *image.Gray, sel QuadSelector) (geom.Quad, error) {
	if sel == nil {
		sel = LargestQuadSelector{}
	}
	return sel.SelectQuad(FindContours(edges))
}
