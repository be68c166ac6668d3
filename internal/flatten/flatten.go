package flatten

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/ironsheep/docflat/internal/detection"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/perspective"
)

// Result is a flattened page.
type Result struct {
	// Image is the rectified page, Width × Height pixels.
	Image *image.NRGBA `json:"-"`

	// Corners are the page corners in source pixel coordinates, measured
	// from the top-left of the source image.
	Corners geom.Corners `json:"corners"`

	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection holds the intermediate products of boundary detection. Fields
// are filled in stage order, so after a failure the earlier ones remain
// usable.
type Detection struct {
	// Edges is the edge map of the detection image.
	Edges *imaging.EdgeMap

	// Scale maps detection-image coordinates to source coordinates.
	Scale float64

	// Quad is the selected boundary in source coordinates, in contour order.
	Quad geom.Quad

	// Corners is Quad labelled by role.
	Corners geom.Corners

	// Found reports that Quad is set.
	Found bool
}

// Flattener runs the flattening pipeline with a fixed configuration. It is
// immutable after New and safe for concurrent use.
type Flattener struct {
	edge         imaging.EdgeParams
	selector     detection.QuadSelector
	orderer      detection.CornerOrderer
	detectMaxDim int
	debugDir     string
	overlay      imaging.OverlayStyle
	logger       *slog.Logger
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithEdgeParams sets the edge-map parameters.
func WithEdgeParams(p imaging.EdgeParams) Option {
	return func(f *Flattener) { f.edge = p }
}

// WithSelector sets the boundary selection policy.
func WithSelector(s detection.QuadSelector) Option {
	return func(f *Flattener) {
		if s != nil {
			f.selector = s
		}
	}
}

// WithEpsilonFraction keeps the current selector policy but changes its
// polygon-approximation tolerance.
func WithEpsilonFraction(eps float64) Option {
	return func(f *Flattener) {
		switch s := f.selector.(type) {
		case detection.LargestQuadSelector:
			s.EpsilonFraction = eps
			f.selector = s
		case detection.RectangularitySelector:
			s.EpsilonFraction = eps
			f.selector = s
		}
	}
}

// WithOrderer sets the corner labelling policy.
func WithOrderer(o detection.CornerOrderer) Option {
	return func(f *Flattener) {
		if o != nil {
			f.orderer = o
		}
	}
}

// WithDetectMaxDim runs detection on a copy no larger than maxDim on either
// side. Rectification always samples the full-resolution source. Zero
// disables downscaling.
func WithDetectMaxDim(maxDim int) Option {
	return func(f *Flattener) { f.detectMaxDim = maxDim }
}

// WithDebugDir sets where FlattenFile writes debug artifacts.
func WithDebugDir(dir string) Option {
	return func(f *Flattener) { f.debugDir = dir }
}

// WithOverlayStyle sets how the contour artifact is drawn.
func WithOverlayStyle(s imaging.OverlayStyle) Option {
	return func(f *Flattener) { f.overlay = s }
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Flattener) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns a Flattener with the document defaults: 5×5 blur, Canny
// 75/200, largest four-vertex contour at 2% tolerance, sum/difference
// corner ordering.
func New(opts ...Option) *Flattener {
	f := &Flattener{
		edge:     imaging.DefaultEdgeParams(),
		selector: detection.LargestQuadSelector{EpsilonFraction: detection.DefaultEpsilonFraction},
		orderer:  detection.SumDiffOrderer{},
		overlay:  imaging.DefaultOverlayStyle(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// With returns a copy of f with further options applied.
func (f *Flattener) With(opts ...Option) *Flattener {
	c := *f
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// DebugDir is the configured debug directory.
func (f *Flattener) DebugDir() string {
	return f.debugDir
}

// Detect runs edge detection, boundary search and corner ordering.
//
// The returned Detection is never nil; on error it holds whatever stages
// completed.
func (f *Flattener) Detect(img image.Image) (*Detection, error) {
	det := &Detection{Scale: 1}
	if img == nil || img.Bounds().Empty() {
		return det, wrap("edge map", "", imaging.ErrEmptyImage)
	}

	start := time.Now()
	small, scale := imaging.FitWithin(img, f.detectMaxDim)
	det.Scale = scale

	em, err := imaging.BuildEdgeMap(small, f.edge)
	if err != nil {
		return det, wrap("edge map", "", err)
	}
	det.Edges = em
	f.logger.Debug("edge map built",
		"width", small.Bounds().Dx(),
		"height", small.Bounds().Dy(),
		"scale", scale,
		"edge_pixels", imaging.CountEdgePixels(em.Edges),
		"elapsed", time.Since(start))

	start = time.Now()
	contours := detection.FindContours(em.Edges)
	quad, err := f.selector.SelectQuad(contours)
	f.logger.Debug("boundary search finished",
		"contours", len(contours),
		"found", err == nil,
		"elapsed", time.Since(start))
	if err != nil {
		return det, wrap("find boundary", "", err)
	}
	det.Quad = quad.Scale(scale, scale)
	det.Found = true

	if det.Quad.Degenerate() {
		return det, wrap("order corners", "",
			fmt.Errorf("quad %v: %w", det.Quad, perspective.ErrDegenerateTransform))
	}

	corners, err := f.orderer.Order(det.Quad)
	if err != nil {
		return det, wrap("order corners", "", err)
	}
	det.Corners = corners
	f.logger.Debug("corners ordered", "corners", corners.String())

	return det, nil
}

// Flatten locates the page in img and returns it rectified. img is not
// modified.
func (f *Flattener) Flatten(img image.Image) (*Result, error) {
	_, res, err := f.run(img)
	return res, err
}

// FlattenBytes decodes an encoded image and flattens it.
func (f *Flattener) FlattenBytes(data []byte) (*Result, error) {
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		return nil, &Error{Kind: KindImageDecode, Op: "decode", Err: err}
	}
	return f.Flatten(img)
}

// FlattenFile decodes the image at path, applying EXIF orientation, and
// flattens it.
//
// When emitDebug is true, the intermediate images are written to the debug
// directory (or next to the input when none is set) as
// <stem>_blurred.png, <stem>_edges.png, <stem>_contour.png and
// <stem>_flattened.png, as far as the pipeline got. Failing to write an
// artifact is logged and never changes the result. When emitDebug is false
// nothing is written.
func (f *Flattener) FlattenFile(path string, emitDebug bool) (*Result, error) {
	if path == "" {
		return nil, &Error{Kind: KindInvalidInput, Op: "load", Err: fmt.Errorf("empty path: %w", ErrInvalidInput)}
	}

	img, err := imaging.LoadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindImageDecode, Op: "load", Path: path, Err: err}
	}

	det, res, err := f.run(img)
	if emitDebug {
		f.writeDebug(path, img, det, res)
	}
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	return res, nil
}

func (f *Flattener) run(img image.Image) (*Detection, *Result, error) {
	det, err := f.Detect(img)
	if err != nil {
		return det, nil, err
	}

	start := time.Now()
	out, err := perspective.Rectify(img, det.Corners)
	if err != nil {
		return det, nil, wrap("rectify", "", err)
	}
	f.logger.Debug("page rectified",
		"width", out.Bounds().Dx(),
		"height", out.Bounds().Dy(),
		"elapsed", time.Since(start))

	return det, &Result{
		Image:   out,
		Corners: det.Corners,
		Width:   out.Bounds().Dx(),
		Height:  out.Bounds().Dy(),
	}, nil
}
