package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/ironsheep/docflat/internal/geom"
)

// OverlayStyle controls how a detected boundary is drawn.
type OverlayStyle struct {
	// LineColor is the outline colour as "#rrggbb".
	LineColor string `json:"line_color" yaml:"line_color"`

	// LineWidth is the outline thickness in pixels.
	LineWidth float64 `json:"line_width" yaml:"line_width"`

	// MarkerRadius is the radius of the filled corner markers. Zero hides
	// them.
	MarkerRadius float64 `json:"marker_radius" yaml:"marker_radius"`

	// Labels writes TL/TR/BR/BL next to each corner.
	Labels bool `json:"labels" yaml:"labels"`
}

// DefaultOverlayStyle draws a green 2px outline with labelled markers.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{
		LineColor:    "#00ff00",
		LineWidth:    2,
		MarkerRadius: 5,
		Labels:       true,
	}
}

var cornerLabels = [4]string{"TL", "TR", "BR", "BL"}

// cornerColor gives each corner role its own hue, starting at red for
// top-left and stepping a quarter turn per role.
func cornerColor(i int) color.Color {
	return colorful.Hsv(float64(i)*90, 0.85, 1).Clamped()
}

// DrawQuadOverlay returns a copy of img with the quadrilateral c outlined.
// Coordinates are pixel indices; strokes are centred on pixel centres. The
// input is not modified.
func DrawQuadOverlay(img image.Image, c geom.Corners, style OverlayStyle) (*image.NRGBA, error) {
	lineColor, err := colorful.Hex(style.LineColor)
	if err != nil {
		return nil, fmt.Errorf("invalid line color %q: %w", style.LineColor, err)
	}
	if style.LineWidth <= 0 {
		style.LineWidth = 1
	}

	dst := imaging.Clone(img)
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())

	pts := c.Quad()
	for i := range pts {
		strokeSegment(z, dst, pts[i], pts[(i+1)%4], style.LineWidth, lineColor.Clamped())
	}

	for i, p := range pts {
		if style.MarkerRadius > 0 {
			fillDisc(z, dst, p, style.MarkerRadius, cornerColor(i))
		}
		if style.Labels {
			drawCornerLabel(dst, p, cornerLabels[i], style.MarkerRadius)
		}
	}

	return dst, nil
}

// strokeSegment fills the rectangle of the given width around segment ab.
// Each segment is rasterised on its own so overlapping ends do not cancel.
func strokeSegment(z *vector.Rasterizer, dst *image.NRGBA, a, b geom.Point, width float64, c color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	hw := width / 2
	nx, ny := -dy/length*hw, dx/length*hw

	ax, ay := float32(a.X+0.5), float32(a.Y+0.5)
	bx, by := float32(b.X+0.5), float32(b.Y+0.5)
	fx, fy := float32(nx), float32(ny)

	z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.MoveTo(ax+fx, ay+fy)
	z.LineTo(bx+fx, by+fy)
	z.LineTo(bx-fx, by-fy)
	z.LineTo(ax-fx, ay-fy)
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// fillDisc fills a regular 16-gon approximating a disc around p.
func fillDisc(z *vector.Rasterizer, dst *image.NRGBA, p geom.Point, r float64, c color.Color) {
	const sides = 16
	cx, cy := p.X+0.5, p.Y+0.5

	z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
	for i := 0; i < sides; i++ {
		theta := 2 * math.Pi * float64(i) / sides
		x := float32(cx + r*math.Cos(theta))
		y := float32(cy + r*math.Sin(theta))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// drawCornerLabel writes text just outside the marker at p, kept inside
// the image.
func drawCornerLabel(dst *image.NRGBA, p geom.Point, text string, offset float64) {
	face := basicfont.Face7x13
	b := dst.Bounds()
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Ascent.Ceil()

	x := int(p.X+offset) + 2
	y := int(p.Y-offset) - 2
	x = clamp(x, b.Min.X, b.Max.X-w)
	y = clamp(y, b.Min.Y+h, b.Max.Y-1)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
