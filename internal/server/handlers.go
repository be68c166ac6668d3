package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/ocr"
	"github.com/ironsheep/docflat/internal/perspective"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "document_flatten").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tools/call response.
type ToolErrorData struct {
	// Kind classifies the failure, e.g. "no_document_boundary".
	Kind  flatten.Kind `json:"kind"`
	Error string       `json:"error"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and a ToolErrorData payload.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Info("tool failed", "tool", params.Name, "kind", flatten.KindOf(err), "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", ToolErrorData{
			Kind:  flatten.KindOf(err),
			Error: err.Error(),
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)
	case "image_edge_detect":
		return s.handleImageEdgeDetect(args)
	case "image_compare":
		return s.handleImageCompare(args)

	// Document Operations
	case "document_detect_boundary":
		return s.handleDocumentDetectBoundary(args)
	case "document_flatten":
		return s.handleDocumentFlatten(args)
	case "document_crop_divider":
		return s.handleDocumentCropDivider(args)
	case "document_ocr":
		return s.handleDocumentOCR(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s: %w", name, flatten.ErrInvalidInput)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals args and checks that a path was given.
func decodeArgs(args json.RawMessage, v interface{}, path *string) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %v: %w", err, flatten.ErrInvalidInput)
	}
	if path != nil && *path == "" {
		return fmt.Errorf("path is required: %w", flatten.ErrInvalidInput)
	}
	return nil
}

// load fetches an image through the cache, tagging failures as decode
// errors.
func (s *Server) load(path string) (image.Image, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, &flatten.Error{Kind: flatten.KindImageDecode, Op: "load", Path: path, Err: err}
	}
	return img, nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	if _, err := s.load(a.Path); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	if _, err := s.load(a.Path); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

type imageEdgeDetectArgs struct {
	Path          string  `json:"path"`
	KernelSize    int     `json:"kernel_size"`
	ThresholdLow  float64 `json:"threshold_low"`
	ThresholdHigh float64 `json:"threshold_high"`
}

func (s *Server) handleImageEdgeDetect(args json.RawMessage) (interface{}, error) {
	var a imageEdgeDetectArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	p := imaging.DefaultEdgeParams()
	if a.KernelSize != 0 {
		p.KernelSize = a.KernelSize
	}
	if a.ThresholdLow != 0 {
		p.Low = a.ThresholdLow
	}
	if a.ThresholdHigh != 0 {
		p.High = a.ThresholdHigh
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, flatten.ErrInvalidInput)
	}
	img, err := s.load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.EdgeDetect(img, p)
}

type imageCompareArgs struct {
	PathA string `json:"path_a"`
	PathB string `json:"path_b"`
}

func (s *Server) handleImageCompare(args json.RawMessage) (interface{}, error) {
	var a imageCompareArgs
	if err := decodeArgs(args, &a, nil); err != nil {
		return nil, err
	}
	if a.PathA == "" || a.PathB == "" {
		return nil, fmt.Errorf("path_a and path_b are required: %w", flatten.ErrInvalidInput)
	}
	imgA, err := s.load(a.PathA)
	if err != nil {
		return nil, err
	}
	imgB, err := s.load(a.PathB)
	if err != nil {
		return nil, err
	}
	res, err := imaging.CompareImages(imgA, imgB)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, flatten.ErrInvalidInput)
	}
	return res, nil
}

// === Document Handlers ===

// BoundaryResult is the document_detect_boundary response.
type BoundaryResult struct {
	Corners geom.Corners `json:"corners"`

	// Width and Height are the size the flattened page would have.
	Width  int `json:"width"`
	Height int `json:"height"`

	Overlay *imaging.EncodedImage `json:"overlay,omitempty"`
}

type documentDetectBoundaryArgs struct {
	Path           string `json:"path"`
	IncludeOverlay bool   `json:"include_overlay"`
}

func (s *Server) handleDocumentDetectBoundary(args json.RawMessage) (interface{}, error) {
	var a documentDetectBoundaryArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	img, err := s.load(a.Path)
	if err != nil {
		return nil, err
	}

	det, err := s.flattener.Detect(img)
	if err != nil {
		return nil, err
	}
	w, h := perspective.TargetSize(det.Corners)
	res := &BoundaryResult{Corners: det.Corners, Width: w, Height: h}

	if a.IncludeOverlay {
		overlay, err := imaging.DrawQuadOverlay(img, det.Corners, imaging.DefaultOverlayStyle())
		if err != nil {
			return nil, err
		}
		if res.Overlay, err = imaging.EncodeBase64(overlay, imaging.FormatPNG, 0); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type outputArgs struct {
	OutputPath string `json:"output_path"`
	Format     string `json:"format"`
	Quality    int    `json:"quality"`
}

// ImageOutput carries a produced image either as a written file, inline, or
// both.
type ImageOutput struct {
	OutputPath string                `json:"output_path,omitempty"`
	Image      *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) emit(img image.Image, o outputArgs, inline bool) (ImageOutput, error) {
	var out ImageOutput
	format := s.format
	if o.Format != "" {
		f, err := imaging.ParseOutputFormat(o.Format)
		if err != nil {
			return out, fmt.Errorf("%v: %w", err, flatten.ErrInvalidInput)
		}
		format = f
	}
	quality := s.quality
	if o.Quality != 0 {
		quality = o.Quality
	}

	if o.OutputPath != "" {
		if err := imaging.Save(o.OutputPath, img); err != nil {
			return out, err
		}
		out.OutputPath = o.OutputPath
	}
	if inline || o.OutputPath == "" {
		enc, err := imaging.EncodeBase64(img, format, quality)
		if err != nil {
			return out, err
		}
		out.Image = enc
	}
	return out, nil
}

// FlattenResult is the document_flatten response.
type FlattenResult struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Corners geom.Corners `json:"corners"`
	ImageOutput
	DebugFiles []string `json:"debug_files,omitempty"`
}

type documentFlattenArgs struct {
	Path string `json:"path"`
	outputArgs
	EmitDebug   bool  `json:"emit_debug"`
	ReturnImage *bool `json:"return_image"`
}

func (s *Server) handleDocumentFlatten(args json.RawMessage) (interface{}, error) {
	var a documentFlattenArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}

	res, err := s.flattener.FlattenFile(a.Path, a.EmitDebug)
	if err != nil {
		return nil, err
	}

	inline := a.ReturnImage == nil || *a.ReturnImage
	if a.ReturnImage == nil && a.OutputPath != "" {
		inline = false
	}
	out, err := s.emit(res.Image, a.outputArgs, inline)
	if err != nil {
		return nil, err
	}

	result := &FlattenResult{
		Width:       res.Width,
		Height:      res.Height,
		Corners:     res.Corners,
		ImageOutput: out,
	}
	if a.EmitDebug {
		result.DebugFiles = s.flattener.DebugPaths(a.Path)
	}
	return result, nil
}

// DividerCropResult is the document_crop_divider response.
type DividerCropResult struct {
	DividerX int             `json:"divider_x"`
	Bounds   image.Rectangle `json:"bounds"`
	ImageOutput
}

type documentCropDividerArgs struct {
	Path string `json:"path"`
	outputArgs
	LineThickness  int `json:"line_thickness"`
	ColorTolerance int `json:"color_tolerance"`
	WhiteThreshold int `json:"white_threshold"`
}

func (s *Server) handleDocumentCropDivider(args json.RawMessage) (interface{}, error) {
	var a documentCropDividerArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	p := imaging.DefaultDividerParams()
	if a.LineThickness != 0 {
		p.LineThickness = a.LineThickness
	}
	if a.ColorTolerance != 0 {
		p.ColorTolerance = a.ColorTolerance
	}
	if a.WhiteThreshold != 0 {
		if a.WhiteThreshold < 0 || a.WhiteThreshold > 255 {
			return nil, fmt.Errorf("white_threshold must be in [0, 255]: %w", flatten.ErrInvalidInput)
		}
		p.WhiteThreshold = uint8(a.WhiteThreshold)
	}

	img, err := s.load(a.Path)
	if err != nil {
		return nil, err
	}
	res, err := imaging.CropDivider(img, p)
	if err != nil {
		return nil, err
	}
	out, err := s.emit(res.Image, a.outputArgs, false)
	if err != nil {
		return nil, err
	}
	return &DividerCropResult{DividerX: res.DividerX, Bounds: res.Bounds, ImageOutput: out}, nil
}

// OCRResult is the document_ocr response.
type OCRResult struct {
	*ocr.Result
	Flattened bool          `json:"flattened"`
	Corners   *geom.Corners `json:"corners,omitempty"`
}

type documentOCRArgs struct {
	Path          string  `json:"path"`
	Language      string  `json:"language"`
	Flatten       *bool   `json:"flatten"`
	MinConfidence float64 `json:"min_confidence"`
}

func (s *Server) handleDocumentOCR(args json.RawMessage) (interface{}, error) {
	var a documentOCRArgs
	if err := decodeArgs(args, &a, &a.Path); err != nil {
		return nil, err
	}
	if a.Language == "" {
		a.Language = s.ocrLanguage
	}
	if err := ocr.Check(); err != nil {
		return nil, err
	}

	img, err := s.load(a.Path)
	if err != nil {
		return nil, err
	}

	result := &OCRResult{}
	if a.Flatten == nil || *a.Flatten {
		res, err := s.flattener.Flatten(img)
		if err != nil {
			return nil, err
		}
		img = res.Image
		result.Flattened = true
		result.Corners = &res.Corners
	}

	text, err := ocr.ExtractText(img, ocr.Options{Language: a.Language, MinConfidence: a.MinConfidence})
	if err != nil {
		return nil, err
	}
	result.Result = text
	return result, nil
}
