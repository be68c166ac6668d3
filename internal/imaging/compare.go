package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DiffThreshold is the per-pixel mean channel difference above which two
// pixels count as different.
const DiffThreshold = 10

// CompareResult summarises how far two same-sized images differ.
type CompareResult struct {
	// MeanAbsDiff is the mean absolute difference over R, G and B of every
	// pixel, on the 0–255 scale.
	MeanAbsDiff float64 `json:"mean_abs_diff"`

	// MaxDiff is the largest single-channel difference.
	MaxDiff int `json:"max_diff"`

	// PixelsDifferent counts pixels whose mean channel difference exceeds
	// DiffThreshold.
	PixelsDifferent int `json:"pixels_different"`

	// TotalPixels is the number of pixels compared.
	TotalPixels int `json:"total_pixels"`

	// SimilarityScore is 1 − PixelsDifferent/TotalPixels, rounded to three
	// decimals.
	SimilarityScore float64 `json:"similarity_score"`
}

// CompareImages compares a and b pixel by pixel. Alpha is ignored.
func CompareImages(a, b image.Image) (*CompareResult, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return nil, fmt.Errorf("size mismatch: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	na, nb := imaging.Clone(a), imaging.Clone(b)
	w, h := na.Bounds().Dx(), na.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, ErrEmptyImage
	}

	var total float64
	maxDiff, different := 0, 0
	for y := 0; y < h; y++ {
		ra := na.Pix[y*na.Stride:]
		rb := nb.Pix[y*nb.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			sum := 0
			for ch := 0; ch < 3; ch++ {
				d := absDiff(ra[i+ch], rb[i+ch])
				sum += d
				if d > maxDiff {
					maxDiff = d
				}
			}
			total += float64(sum)
			if float64(sum)/3 > DiffThreshold {
				different++
			}
		}
	}

	n := w * h
	return &CompareResult{
		MeanAbsDiff:     total / float64(3*n),
		MaxDiff:         maxDiff,
		PixelsDifferent: different,
		TotalPixels:     n,
		SimilarityScore: math.Round((1-float64(different)/float64(n))*1000) / 1000,
	}, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
