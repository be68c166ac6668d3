package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/docflat/internal/imaging"
)

// DefaultLanguage is used when a caller passes an empty language.
const DefaultLanguage = "eng"

// ErrEmptyImage is returned when there is nothing to read.
var ErrEmptyImage = errors.New("ocr: empty image")

// ErrUnavailable is returned by Check when no Tesseract library is linked
// or it reports no version.
var ErrUnavailable = errors.New("ocr: tesseract is not available")

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1" yaml:"x1"` // Left edge
	Y1 int `json:"y1" yaml:"y1"` // Top edge
	X2 int `json:"x2" yaml:"x2"` // Right edge
	Y2 int `json:"y2" yaml:"y2"` // Bottom edge
}

// TextRegion is one recognised word.
type TextRegion struct {
	Text string `json:"text" yaml:"text"`

	// Confidence is Tesseract's certainty, 0.0 to 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	Bounds Bounds `json:"bounds" yaml:"bounds"`
}

// Result is the text of one page.
type Result struct {
	// FullText is all recognised text with the engine's line breaks.
	FullText string `json:"full_text" yaml:"full_text"`

	// Regions lists words at or above the requested confidence.
	Regions []TextRegion `json:"regions" yaml:"regions"`

	Language string `json:"language" yaml:"language"`
}

// Options tunes ExtractText.
type Options struct {
	// Language is a Tesseract code, or several joined with "+".
	Language string

	// MinConfidence drops words below this confidence from Regions. It
	// does not affect FullText.
	MinConfidence float64
}

// ExtractText runs OCR over an in-memory page, typically the output of
// flattening.
//
// The page is handed to Tesseract as PNG bytes, so no temporary file is
// written.
func ExtractText(img image.Image, opts Options) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	data, err := imaging.EncodeBytes(img, imaging.FormatPNG, 0)
	if err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	result := &Result{FullText: text, Regions: []TextRegion{}, Language: lang}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text without boxes is still useful.
		return result, nil
	}
	result.Regions = wordRegions(boxes, opts.MinConfidence)
	return result, nil
}

// ExtractTextFile loads the image at path, applying EXIF orientation, and
// runs ExtractText on it.
func ExtractTextFile(path string, opts Options) (*Result, error) {
	img, err := imaging.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return ExtractText(img, opts)
}

func wordRegions(boxes []gosseract.BoundingBox, minConfidence float64) []TextRegion {
	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		confidence := float64(box.Confidence) / 100.0
		if confidence < minConfidence {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       word,
			Confidence: confidence,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return regions
}

// Info describes the OCR engine.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
}

// Available reports the linked Tesseract version.
func Available() Info {
	client := gosseract.NewClient()
	defer client.Close()

	version := strings.TrimSpace(client.Version())
	return Info{
		Available: version != "",
		Version:   version,
		Backend:   "gosseract",
	}
}

// Check returns ErrUnavailable when Available reports no engine.
func Check() error {
	if !Available().Available {
		return ErrUnavailable
	}
	return nil
}
