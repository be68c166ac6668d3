// Package transport exposes the flattening pipeline over HTTP with gin.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/perspective"
)

// CornersHeader carries the detected corners of a flatten response as
// "x,y;x,y;x,y;x,y" in TL, TR, BR, BL order.
const CornersHeader = "X-Docflat-Corners"

// DefaultMaxBodyBytes bounds uploaded images.
const DefaultMaxBodyBytes int64 = 32 << 20

// Options configures NewHandler.
type Options struct {
	Flattener    *flatten.Flattener
	Logger       *slog.Logger
	Format       imaging.OutputFormat
	Quality      int
	MaxBodyBytes int64
	Version      string
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Kind    flatten.Kind `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
}

// BoundaryResponse is the body of POST /v1/boundary.
type BoundaryResponse struct {
	Corners geom.Corners `json:"corners"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
}

type handler struct {
	opts Options
}

// NewHandler builds the HTTP API:
//
//	POST /v1/flatten   image in, flattened image out
//	POST /v1/boundary  image in, corners as JSON out
//	GET  /healthz
//
// Images are sent either as the raw request body or as the "image" field of
// a multipart form.
func NewHandler(opts Options) http.Handler {
	if opts.Flattener == nil {
		opts.Flattener = flatten.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Format == "" {
		opts.Format = imaging.FormatPNG
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &handler{opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger(), requestSizeLimiter(opts.MaxBodyBytes))

	r.GET("/healthz", h.healthCheck)
	v1 := r.Group("/v1")
	v1.POST("/flatten", h.flatten)
	v1.POST("/boundary", h.boundary)

	return r
}

func (h *handler) flatten(c *gin.Context) {
	format := h.opts.Format
	if q := c.Query("format"); q != "" {
		f, err := imaging.ParseOutputFormat(q)
		if err != nil {
			h.respondError(c, fmt.Errorf("%v: %w", err, flatten.ErrInvalidInput))
			return
		}
		format = f
	}
	quality := h.opts.Quality
	if q := c.Query("quality"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 100 {
			h.respondError(c, fmt.Errorf("quality must be 1-100: %w", flatten.ErrInvalidInput))
			return
		}
		quality = n
	}

	data, err := readImage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, err := h.opts.Flattener.FlattenBytes(data)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, err := imaging.EncodeBytes(res.Image, format, quality)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header(CornersHeader, FormatCorners(res.Corners))
	c.Data(http.StatusOK, format.MimeType(), out)
}

func (h *handler) boundary(c *gin.Context) {
	data, err := readImage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		h.respondError(c, err)
		return
	}
	det, err := h.opts.Flattener.Detect(img)
	if err != nil {
		h.respondError(c, err)
		return
	}
	w, ht := perspective.TargetSize(det.Corners)
	c.JSON(http.StatusOK, BoundaryResponse{Corners: det.Corners, Width: w, Height: ht})
}

func (h *handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": h.opts.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// readImage returns the uploaded image bytes from a multipart "image" field
// or the raw body.
func readImage(c *gin.Context) ([]byte, error) {
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload: %v: %w", err, flatten.ErrInvalidInput)
		}
		defer f.Close()
		return readAll(f)
	}
	return readAll(c.Request.Body)
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("image exceeds %d bytes: %w", tooLarge.Limit, flatten.ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to read image: %v: %w", err, flatten.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no image in request: %w", flatten.ErrInvalidInput)
	}
	return data, nil
}

// FormatCorners renders corners for CornersHeader.
func FormatCorners(c geom.Corners) string {
	q := c.Quad()
	return fmt.Sprintf("%.1f,%.1f;%.1f,%.1f;%.1f,%.1f;%.1f,%.1f",
		q[0].X, q[0].Y, q[1].X, q[1].Y, q[2].X, q[2].Y, q[3].X, q[3].Y)
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.opts.Logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"elapsed", time.Since(start))
	}
}

func (h *handler) respondError(c *gin.Context, err error) {
	code := flatten.HTTPStatus(err)
	kind := flatten.KindOf(err)
	h.opts.Logger.Warn("request failed",
		"status_code", code,
		"kind", kind,
		"path", c.Request.URL.Path,
		"error", err)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Kind:    kind,
		Message: err.Error(),
	})
}
