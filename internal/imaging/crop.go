package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/docflat/internal/detection"
)

var (
	// ErrNoDivider is returned when no column strip qualifies as a divider.
	ErrNoDivider = errors.New("no vertical divider found")

	// ErrNoContent is returned when nothing darker than the white threshold
	// lies right of the divider.
	ErrNoContent = errors.New("no content right of divider")
)

// DividerParams configures CropDivider.
type DividerParams struct {
	// LineThickness is the width in pixels of the divider strip.
	LineThickness int `json:"line_thickness" yaml:"line_thickness"`

	// ColorTolerance is the largest per-channel deviation, on the 0–255
	// scale, allowed between any strip pixel and the strip's reference
	// colour.
	ColorTolerance int `json:"color_tolerance" yaml:"color_tolerance"`

	// WhiteThreshold separates content from background: gray values below
	// it count as content. Strips whose reference colour is at least this
	// bright are background, not dividers.
	WhiteThreshold uint8 `json:"white_threshold" yaml:"white_threshold"`
}

// DefaultDividerParams returns a 5px strip, tolerance 10 and threshold 220.
func DefaultDividerParams() DividerParams {
	return DividerParams{LineThickness: 5, ColorTolerance: 10, WhiteThreshold: 220}
}

// DividerResult describes a divider crop.
type DividerResult struct {
	// DividerX is the centre column of the divider strip.
	DividerX int `json:"divider_x"`

	// Bounds is the cropped region in source coordinates.
	Bounds image.Rectangle `json:"bounds"`

	// Image is the cropped region.
	Image *image.NRGBA `json:"-"`
}

// CropDivider finds a solid vertical divider line and crops the largest
// block of content to its right.
//
// Scanning from the left, the first LineThickness-wide full-height strip
// whose every pixel lies within ColorTolerance of the strip's top-centre
// pixel is the divider. Right of the strip, pixels darker than
// WhiteThreshold are content; the outer border of largest area among them
// is traced and its bounding box cropped.
func CropDivider(img image.Image, p DividerParams) (*DividerResult, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if p.LineThickness < 1 {
		return nil, fmt.Errorf("line thickness must be positive, got %d", p.LineThickness)
	}

	src := imaging.Clone(img)
	width := src.Bounds().Dx()
	height := src.Bounds().Dy()
	gray := toGray(effect.GrayscaleWithWeights(src, lumaR, lumaG, lumaB))

	dividerX := -1
	stripStart := 0
	for x := 0; x+p.LineThickness < width; x++ {
		ref := src.NRGBAAt(x+p.LineThickness/2, 0)
		if gray.GrayAt(x+p.LineThickness/2, 0).Y >= p.WhiteThreshold {
			continue
		}
		if uniformStrip(src, x, p.LineThickness, ref, p.ColorTolerance) {
			dividerX = x + p.LineThickness/2
			stripStart = x
			break
		}
	}
	if dividerX < 0 {
		return nil, ErrNoDivider
	}

	left := stripStart + p.LineThickness
	mask := image.NewGray(image.Rect(0, 0, width-left, height))
	for y := 0; y < height; y++ {
		for x := left; x < width; x++ {
			if gray.GrayAt(x, y).Y < p.WhiteThreshold {
				mask.Pix[y*mask.Stride+x-left] = 255
			}
		}
	}

	var best detection.Contour
	bestArea := -1.0
	for _, c := range detection.FindContours(mask) {
		if c.Hole || c.Parent >= 0 {
			continue
		}
		if a := c.Area(); a > bestArea {
			best, bestArea = c, a
		}
	}
	if bestArea < 0 {
		return nil, ErrNoContent
	}

	r := detection.BoundingRect(best.Points).Add(image.Pt(left, 0)).Intersect(src.Bounds())
	return &DividerResult{
		DividerX: dividerX,
		Bounds:   r,
		Image:    imaging.Crop(src, r),
	}, nil
}

// uniformStrip reports whether every pixel of the full-height strip starting
// at column x0 is within tol of ref on each channel.
func uniformStrip(img *image.NRGBA, x0, thickness int, ref color.NRGBA, tol int) bool {
	for y := 0; y < img.Bounds().Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := x0; x < x0+thickness; x++ {
			i := x * 4
			if absInt(int(row[i])-int(ref.R)) > tol ||
				absInt(int(row[i+1])-int(ref.G)) > tol ||
				absInt(int(row[i+2])-int(ref.B)) > tol {
				return false
			}
		}
	}
	return true
}
