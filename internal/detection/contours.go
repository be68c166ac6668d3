package detection

import (
	"image"
)

// Contour is one closed border traced in a binary image.
//
// Points are in image coordinates and compressed so that only the end points
// of horizontal, vertical and diagonal runs remain. The curve is implicitly
// closed: the last point connects back to the first.
type Contour struct {
	// Points lists the border vertices in tracing order.
	Points []image.Point `json:"points"`

	// Hole is true for a border that separates a foreground region from a
	// background hole inside it, and false for an outer border.
	Hole bool `json:"hole"`

	// Parent is the index of the enclosing border in the slice returned by
	// FindContours, or -1 when the border is enclosed only by the image frame.
	Parent int `json:"parent"`
}

// Area is the absolute area enclosed by the contour.
func (c Contour) Area() float64 {
	return PolygonArea(c.Points)
}

// Perimeter is the closed arc length of the contour.
func (c Contour) Perimeter() float64 {
	return ArcLength(c.Points, true)
}

// neighbour offsets in clockwise order on screen (Y grows downward),
// starting east.
var neighbours = [8]image.Point{
	{1, 0},   // E
	{1, 1},   // SE
	{0, 1},   // S
	{-1, 1},  // SW
	{-1, 0},  // W
	{-1, -1}, // NW
	{0, -1},  // N
	{1, -1},  // NE
}

const (
	dirEast = 0
	dirWest = 4
)

// direction returns the neighbour index of the step from a to b, which must
// be 8-adjacent.
func direction(a, b image.Point) int {
	d := b.Sub(a)
	for i, n := range neighbours {
		if n == d {
			return i
		}
	}
	return -1
}

// FindContours traces every border in a binary image.
//
// Any non-zero pixel of bin is foreground. Both outer borders and hole
// borders are returned, in the order their starting pixels are met by a
// raster scan. The image frame is treated as background, so foreground
// touching the edge of the image still yields closed borders.
//
// Parameters:
//   - bin: Binary image, typically an edge map. It is not modified.
//
// Returns:
//   - []Contour: Every border, closed and compressed to the vertices where
//     the chain changes direction, with Hole and Parent set. Empty for an
//     image without foreground.
//
// # Algorithm
//
// This is the border-following procedure of Suzuki and Abe (1985):
//
//  1. Scan rows top to bottom. A foreground pixel whose west neighbour is
//     background starts an outer border; a foreground pixel whose east
//     neighbour is background starts a hole border (unless already taken).
//  2. From the start pixel, search clockwise for the first foreground
//     neighbour, then repeatedly search counter-clockwise around the current
//     pixel, beginning just past the pixel we came from.
//  3. Label each visited pixel with the border's sequence number, negated
//     when its east neighbour is background, so later scans neither restart
//     the same border nor miss a neighbouring one.
//  4. Stop when the walk returns to the start pixel heading to the same
//     second pixel.
//
// The parent of each border follows Suzuki's table: the last border seen on
// the current row (LNBD) is the parent when the types differ, and LNBD's
// parent when they match.
func FindContours(bin *image.Gray) []Contour {
	b := bin.Bounds()
	width := b.Dx()
	height := b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	// Labels on a one-pixel zero frame: 0 background, 1 unvisited
	// foreground, ±n visited by border n (n ≥ 2).
	stride := width + 2
	labels := make([]int32, stride*(height+2))
	for y := 0; y < height; y++ {
		row := bin.Pix[y*bin.Stride : y*bin.Stride+width]
		for x, v := range row {
			if v != 0 {
				labels[(y+1)*stride+x+1] = 1
			}
		}
	}
	at := func(p image.Point) int32 { return labels[p.Y*stride+p.X] }
	set := func(p image.Point, v int32) { labels[p.Y*stride+p.X] = v }

	type border struct {
		hole   bool
		parent int // border number, 1 is the frame
	}
	// Border numbers start at 2; index 1 is the frame, a hole border.
	borders := []border{{}, {hole: true, parent: 0}}
	var contours []Contour

	nbd := int32(1)
	for y := 1; y <= height; y++ {
		lnbd := int32(1)
		for x := 1; x <= width; x++ {
			p := image.Point{X: x, Y: y}
			f := at(p)
			if f == 0 {
				continue
			}

			var from image.Point
			var hole bool
			switch {
			case f == 1 && at(image.Point{X: x - 1, Y: y}) == 0:
				from = image.Point{X: x - 1, Y: y}
			case f >= 1 && at(image.Point{X: x + 1, Y: y}) == 0:
				from = image.Point{X: x + 1, Y: y}
				hole = true
				if f > 1 {
					lnbd = f
				}
			default:
				if f != 1 {
					lnbd = abs32(f)
				}
				continue
			}

			nbd++
			prev := borders[lnbd]
			parent := int(lnbd)
			if prev.hole == hole {
				parent = prev.parent
			}
			borders = append(borders, border{hole: hole, parent: parent})

			pts := traceBorder(p, from, nbd, at, set)
			for i := range pts {
				pts[i] = pts[i].Sub(image.Point{X: 1, Y: 1}).Add(b.Min)
			}

			parentIdx := -1
			if parent >= 2 {
				parentIdx = parent - 2
			}
			contours = append(contours, Contour{
				Points: compressChain(pts),
				Hole:   hole,
				Parent: parentIdx,
			})

			if g := at(p); g != 1 {
				lnbd = abs32(g)
			}
		}
	}

	return contours
}

// traceBorder follows one border starting at start, entering from the
// background pixel from, and labels it with nbd. It returns every pixel
// visited, in padded coordinates.
func traceBorder(start, from image.Point, nbd int32, at func(image.Point) int32, set func(image.Point, int32)) []image.Point {
	// Clockwise search for the first foreground neighbour.
	d0 := direction(start, from)
	first := image.Point{}
	found := false
	for k := 0; k < 8; k++ {
		q := start.Add(neighbours[(d0+k)%8])
		if at(q) != 0 {
			first = q
			found = true
			break
		}
	}
	if !found {
		// Isolated pixel.
		set(start, -nbd)
		return []image.Point{start}
	}

	pts := make([]image.Point, 0, 64)
	prev, cur := first, start
	for {
		// Counter-clockwise search around cur, starting just past prev.
		d := direction(cur, prev)
		eastZero := false
		var next image.Point
		for k := 1; k <= 8; k++ {
			nd := (d - k + 8) % 8
			q := cur.Add(neighbours[nd])
			if at(q) != 0 {
				next = q
				break
			}
			if nd == dirEast {
				eastZero = true
			}
		}

		if eastZero {
			set(cur, -nbd)
		} else if at(cur) == 1 {
			set(cur, nbd)
		}
		pts = append(pts, cur)

		if next == start && cur == first {
			break
		}
		prev, cur = cur, next
	}
	return pts
}

// compressChain drops every point that continues the previous step in the
// same direction, leaving only the corners of each straight run. The chain
// is treated as closed.
func compressChain(pts []image.Point) []image.Point {
	n := len(pts)
	if n <= 2 {
		return append([]image.Point(nil), pts...)
	}

	out := make([]image.Point, 0, n/2+1)
	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		if cur.Sub(prev) != next.Sub(cur) {
			out = append(out, cur)
		}
	}
	if len(out) == 0 {
		out = append(out, pts[0])
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
