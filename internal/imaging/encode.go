package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used when a caller asks for JPEG without a quality.
const DefaultJPEGQuality = 95

// OutputFormat names an encoded output family.
type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
)

// ParseOutputFormat accepts "png", "jpeg" or "jpg" in any case. An empty
// string means PNG.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want png or jpeg)", s)
}

// MimeType is the media type of the encoded output.
func (f OutputFormat) MimeType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Extension is the conventional file extension, with the leading dot.
func (f OutputFormat) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

func (f OutputFormat) imagingFormat() imaging.Format {
	if f == FormatJPEG {
		return imaging.JPEG
	}
	return imaging.PNG
}

// Encode writes img to w. Quality applies to JPEG only; values outside
// 1–100 fall back to DefaultJPEGQuality.
func Encode(w io.Writer, img image.Image, format OutputFormat, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := imaging.Encode(w, img, format.imagingFormat(), imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode %s image: %w", format, err)
	}
	return nil
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, format OutputFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes img to path in the format implied by its extension, creating
// or truncating the file.
func Save(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// EncodedImage is an image packaged for a JSON response.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodeBase64 encodes img and wraps it in an EncodedImage.
func EncodeBase64(img image.Image, format OutputFormat, quality int) (*EncodedImage, error) {
	data, err := EncodeBytes(img, format, quality)
	if err != nil {
		return nil, err
	}
	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    format.MimeType(),
	}, nil
}
