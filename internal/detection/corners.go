package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/docflat/internal/geom"
)

// ErrAmbiguousCornerOrdering is returned when one input point would have to
// fill two corner roles.
var ErrAmbiguousCornerOrdering = errors.New("ambiguous corner ordering")

// CornerOrderer assigns the four points of a quad to their page roles. The
// result must be a permutation of the input points.
type CornerOrderer interface {
	Order(q geom.Quad) (geom.Corners, error)
}

// SumDiffOrderer labels corners by coordinate sum and difference:
// top-left has the smallest x+y, bottom-right the largest x+y, top-right the
// smallest y−x and bottom-left the largest y−x.
//
// It assumes a convex quad within roughly 45° of upright. Ties are broken
// by (x, y) order, so the result does not depend on input order.
type SumDiffOrderer struct{}

// Order implements CornerOrderer.
func (SumDiffOrderer) Order(q geom.Quad) (geom.Corners, error) {
	pts := sortedPoints(q)

	var tl, br, tr, bl int
	for i, p := range pts {
		s := p.X + p.Y
		d := p.Y - p.X
		if s < pts[tl].X+pts[tl].Y {
			tl = i
		}
		if s > pts[br].X+pts[br].Y {
			br = i
		}
		if d < pts[tr].Y-pts[tr].X {
			tr = i
		}
		if d > pts[bl].Y-pts[bl].X {
			bl = i
		}
	}

	if !distinct(tl, tr, br, bl) {
		return geom.Corners{}, fmt.Errorf("points %v: %w", q, ErrAmbiguousCornerOrdering)
	}
	return geom.Corners{
		TopLeft:     pts[tl],
		TopRight:    pts[tr],
		BottomRight: pts[br],
		BottomLeft:  pts[bl],
	}, nil
}

// CentroidAngleOrderer sorts the points by polar angle around their
// centroid and labels them clockwise from the point nearest the upper-left
// diagonal. It accepts any rotation of a convex quad.
type CentroidAngleOrderer struct{}

// Order implements CornerOrderer.
func (CentroidAngleOrderer) Order(q geom.Quad) (geom.Corners, error) {
	pts := sortedPoints(q)
	c := geom.Quad(pts).Centroid()

	angle := func(p geom.Point) float64 {
		return math.Atan2(p.Y-c.Y, p.X-c.X)
	}
	// Clockwise on screen is increasing atan2 when Y grows downward.
	sort.SliceStable(pts[:], func(i, j int) bool {
		return angle(pts[i]) < angle(pts[j])
	})
	for i := 1; i < 4; i++ {
		if angle(pts[i]) == angle(pts[i-1]) {
			return geom.Corners{}, fmt.Errorf("points %v share a bearing: %w", q, ErrAmbiguousCornerOrdering)
		}
	}

	// The upper-left diagonal points at -135°.
	start := 0
	bestDelta := math.Inf(1)
	for i, p := range pts {
		delta := math.Abs(angleDiff(angle(p), -3*math.Pi/4))
		if delta < bestDelta {
			bestDelta = delta
			start = i
		}
	}

	return geom.Corners{
		TopLeft:     pts[start],
		TopRight:    pts[(start+1)%4],
		BottomRight: pts[(start+2)%4],
		BottomLeft:  pts[(start+3)%4],
	}, nil
}

// angleDiff returns a−b wrapped into (−π, π].
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// sortedPoints copies q into (x, y) order.
func sortedPoints(q geom.Quad) [4]geom.Point {
	pts := [4]geom.Point(q)
	sort.Slice(pts[:], func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	return pts
}

func distinct(idx ...int) bool {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}
