// Package geom holds the small value types shared by the flattening stages:
// sub-pixel points, four-point quadrilaterals and role-labelled corners.
//
// All types are plain values. Stages copy them freely and never mutate a
// value they did not create.
package geom

import (
	"fmt"
	"image"
	"math"
)

// collinearEpsilon bounds |cross| / (|ab|·|ac|) below which three points are
// treated as collinear. It is the sine of the angle between the two spans.
const collinearEpsilon = 1e-6

// Point is a 2-D point in pixel coordinates. X grows rightward and Y grows
// downward, matching image.Point.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// FromImagePoint converts an integer pixel position.
func FromImagePoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale multiplies both coordinates independently.
func (p Point) Scale(sx, sy float64) Point {
	return Point{X: p.X * sx, Y: p.Y * sy}
}

// Dist is the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Cross returns the z component of (b-a) × (c-a).
func Cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Collinear reports whether a, b and c lie on one line, including the case
// where two of them coincide.
func Collinear(a, b, c Point) bool {
	ab := a.Dist(b)
	ac := a.Dist(c)
	if ab == 0 || ac == 0 || b.Dist(c) == 0 {
		return true
	}
	return math.Abs(Cross(a, b, c))/(ab*ac) < collinearEpsilon
}

// Quad is an unordered set of exactly four points, as produced by polygon
// approximation of a contour.
type Quad [4]Point

// Area is the absolute shoelace area of the quad taken in stored order.
func (q Quad) Area() float64 {
	var sum float64
	for i := range q {
		j := (i + 1) % 4
		sum += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return math.Abs(sum) / 2
}

// Degenerate reports whether any three of the four points are collinear
// (coincident points included) or the quad encloses no area. A degenerate
// quad cannot be mapped onto a rectangle by a projective transform.
func (q Quad) Degenerate() bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				if Collinear(q[i], q[j], q[k]) {
					return true
				}
			}
		}
	}
	return q.Area() == 0
}

// Centroid is the arithmetic mean of the four vertices.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	return Point{X: c.X / 4, Y: c.Y / 4}
}

// Scale returns a copy with every vertex scaled by (sx, sy).
func (q Quad) Scale(sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = p.Scale(sx, sy)
	}
	return out
}

// Corners is a quad whose points carry their page roles.
type Corners struct {
	TopLeft     Point `json:"top_left" yaml:"top_left"`
	TopRight    Point `json:"top_right" yaml:"top_right"`
	BottomRight Point `json:"bottom_right" yaml:"bottom_right"`
	BottomLeft  Point `json:"bottom_left" yaml:"bottom_left"`
}

// Quad returns the corners in TL, TR, BR, BL order.
func (c Corners) Quad() Quad {
	return Quad{c.TopLeft, c.TopRight, c.BottomRight, c.BottomLeft}
}

// Scale returns a copy with every corner scaled by (sx, sy).
func (c Corners) Scale(sx, sy float64) Corners {
	return Corners{
		TopLeft:     c.TopLeft.Scale(sx, sy),
		TopRight:    c.TopRight.Scale(sx, sy),
		BottomRight: c.BottomRight.Scale(sx, sy),
		BottomLeft:  c.BottomLeft.Scale(sx, sy),
	}
}

// TopEdge, BottomEdge, LeftEdge and RightEdge are the side lengths.
func (c Corners) TopEdge() float64    { return c.TopLeft.Dist(c.TopRight) }
func (c Corners) BottomEdge() float64 { return c.BottomLeft.Dist(c.BottomRight) }
func (c Corners) LeftEdge() float64   { return c.TopLeft.Dist(c.BottomLeft) }
func (c Corners) RightEdge() float64  { return c.TopRight.Dist(c.BottomRight) }

func (c Corners) String() string {
	return fmt.Sprintf("TL%v TR%v BR%v BL%v", c.TopLeft, c.TopRight, c.BottomRight, c.BottomLeft)
}
