package detection

import (
	"image"
	"math"
)

// PolygonArea is the absolute shoelace area of a closed polygon.
func PolygonArea(pts []image.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += int64(pts[i].X)*int64(pts[j].Y) - int64(pts[j].X)*int64(pts[i].Y)
	}
	return math.Abs(float64(sum)) / 2
}

// ArcLength is the length of the polyline through pts, including the
// closing segment when closed is true.
func ArcLength(pts []image.Point, closed bool) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	var length float64
	for i := 0; i < n-1; i++ {
		length += dist(pts[i], pts[i+1])
	}
	if closed {
		length += dist(pts[n-1], pts[0])
	}
	return length
}

// BoundingRect is the smallest axis-aligned rectangle containing every
// point. Max is exclusive.
func BoundingRect(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0].Add(image.Point{X: 1, Y: 1})}
	for _, p := range pts[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Point{X: 1, Y: 1})})
	}
	return r
}

// IsConvex reports whether the closed polygon turns in one direction only.
func IsConvex(pts []image.Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			continue
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return sign != 0
}

// ApproxPolyDP simplifies a curve with the Douglas–Peucker algorithm so that
// no point of the original lies farther than epsilon from the simplified
// polygon.
//
// For closed curves the split points are the two mutually distant vertices
// found by alternating farthest-point searches, each arc is simplified on
// its own, and a final pass removes vertices that lie within epsilon of the
// segment joining their neighbours.
func ApproxPolyDP(pts []image.Point, epsilon float64, closed bool) []image.Point {
	n := len(pts)
	if n <= 2 || epsilon < 0 {
		return append([]image.Point(nil), pts...)
	}
	if !closed {
		return douglasPeucker(pts, epsilon)
	}

	// Pick two far-apart vertices as the fixed split of the loop.
	a := 0
	b := farthestFrom(pts, a)
	for i := 0; i < 2; i++ {
		c := farthestFrom(pts, b)
		if c == a {
			break
		}
		a, b = b, c
	}
	if a > b {
		a, b = b, a
	}
	if a == b {
		return []image.Point{pts[a]}
	}

	arc1 := pts[a : b+1]
	arc2 := make([]image.Point, 0, n-b+a+1)
	arc2 = append(arc2, pts[b:]...)
	arc2 = append(arc2, pts[:a+1]...)

	s1 := douglasPeucker(arc1, epsilon)
	s2 := douglasPeucker(arc2, epsilon)

	out := make([]image.Point, 0, len(s1)+len(s2))
	out = append(out, s1[:len(s1)-1]...)
	out = append(out, s2[:len(s2)-1]...)

	return dropStraightVertices(out, epsilon)
}

// douglasPeucker simplifies an open polyline, keeping both end points.
func douglasPeucker(pts []image.Point, epsilon float64) []image.Point {
	n := len(pts)
	if n <= 2 {
		return append([]image.Point(nil), pts...)
	}

	keep := make([]bool, n)
	keep[0] = true
	keep[n-1] = true

	type span struct{ lo, hi int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.hi-s.lo < 2 {
			continue
		}

		maxDist := -1.0
		maxIdx := s.lo
		for i := s.lo + 1; i < s.hi; i++ {
			d := segmentDistance(pts[i], pts[s.lo], pts[s.hi])
			if d > maxDist {
				maxDist = d
				maxIdx = i
			}
		}

		if maxDist > epsilon {
			keep[maxIdx] = true
			stack = append(stack, span{s.lo, maxIdx}, span{maxIdx, s.hi})
		}
	}

	out := make([]image.Point, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

// dropStraightVertices removes, until none remain, vertices of a closed
// polygon lying within epsilon of the segment between their neighbours.
func dropStraightVertices(pts []image.Point, epsilon float64) []image.Point {
	out := append([]image.Point(nil), pts...)
	for len(out) > 3 {
		removed := false
		for i := 0; i < len(out) && len(out) > 3; i++ {
			n := len(out)
			prev := out[(i-1+n)%n]
			next := out[(i+1)%n]
			if segmentDistance(out[i], prev, next) <= epsilon {
				out = append(out[:i], out[i+1:]...)
				removed = true
				i--
			}
		}
		if !removed {
			break
		}
	}
	return out
}

func farthestFrom(pts []image.Point, idx int) int {
	best := idx
	bestDist := -1.0
	for i, p := range pts {
		d := dist(p, pts[idx])
		if d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// segmentDistance is the distance from p to the line through a and b, or to
// a itself when a and b coincide.
func segmentDistance(p, a, b image.Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / norm
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
