package server

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/imaging"
)

// createTestImageFile creates a uniformly coloured PNG and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return writeImage(t, "uniform.png", img)
}

// createPageFile draws a white page slightly rotated on black.
func createPageFile(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 300, 220))
	// Page corners (40,30) (260,36) (250,190) (46,180), as half-planes.
	inside := func(x, y float64) bool {
		edges := [4][4]float64{
			{40, 30, 260, 36},
			{260, 36, 250, 190},
			{250, 190, 46, 180},
			{46, 180, 40, 30},
		}
		for _, e := range edges {
			if (e[2]-e[0])*(y-e[1])-(e[3]-e[1])*(x-e[0]) < 0 {
				return false
			}
		}
		return true
	}
	for y := 0; y < 220; y++ {
		for x := 0; x < 300; x++ {
			if inside(float64(x)+0.5, float64(y)+0.5) {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return writeImage(t, "page.png", img)
}

func writeImage(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// callTool runs a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: paramsJSON})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// toolResult decodes the JSON text content of a successful response.
func toolResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatal("Result should have one content item")
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v, want text", content[0]["type"])
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
}

// toolError returns the error payload of a failed response.
func toolError(t *testing.T, resp *MCPResponse) ToolErrorData {
	t.Helper()

	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error.Code: got %d, want -32000", resp.Error.Code)
	}
	data, ok := resp.Error.Data.(ToolErrorData)
	if !ok {
		t.Fatalf("Error.Data: got %T, want ToolErrorData", resp.Error.Data)
	}
	return data
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80, color.RGBA{255, 0, 0, 255})

	var info imaging.ImageInfo
	toolResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": imgPath}), &info)

	if info.Width != 100 || info.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format: got %s, want png", info.Format)
	}
	if info.FileSizeBytes <= 0 {
		t.Errorf("file size: got %d", info.FileSizeBytes)
	}
}

func TestHandleToolsCall_ImageDimensions(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 64, 32, color.White)

	var dims imaging.DimensionsResult
	toolResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": imgPath}), &dims)

	if dims.Width != 64 || dims.Height != 32 {
		t.Errorf("dimensions: got %dx%d, want 64x32", dims.Width, dims.Height)
	}
}

func TestHandleToolsCall_Errors(t *testing.T) {
	s := New()
	blank := createTestImageFile(t, 120, 90, color.Gray{128})
	page := createPageFile(t)

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		kind flatten.Kind
	}{
		{"missing file", "image_load", map[string]interface{}{"path": "/nonexistent/image.png"}, flatten.KindImageDecode},
		{"missing path", "document_flatten", map[string]interface{}{}, flatten.KindInvalidInput},
		{"unknown tool", "image_sharpen", map[string]interface{}{"path": blank}, flatten.KindInvalidInput},
		{"no page", "document_flatten", map[string]interface{}{"path": blank}, flatten.KindNoDocumentBoundary},
		{"no page boundary", "document_detect_boundary", map[string]interface{}{"path": blank}, flatten.KindNoDocumentBoundary},
		{"no divider", "document_crop_divider", map[string]interface{}{"path": blank, "white_threshold": 100}, flatten.KindNoDocumentBoundary},
		{"even kernel", "image_edge_detect", map[string]interface{}{"path": blank, "kernel_size": 4}, flatten.KindInvalidInput},
		{"bad format", "document_flatten", map[string]interface{}{"path": page, "format": "gif"}, flatten.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := toolError(t, callTool(t, s, tt.tool, tt.args))
			if data.Kind != tt.kind {
				t.Errorf("kind: got %q, want %q (%s)", data.Kind, tt.kind, data.Error)
			}
			if data.Error == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New()
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})

	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_EdgeDetect(t *testing.T) {
	s := New()
	imgPath := createPageFile(t)

	var res imaging.EdgeDetectResult
	toolResult(t, callTool(t, s, "image_edge_detect", map[string]interface{}{"path": imgPath}), &res)

	if res.Width != 300 || res.Height != 220 {
		t.Errorf("dimensions: got %dx%d, want 300x220", res.Width, res.Height)
	}
	if res.EdgePixels == 0 {
		t.Error("page outline should produce edges")
	}
	if res.Low != 75 || res.High != 200 {
		t.Errorf("thresholds: got %g/%g, want defaults 75/200", res.Low, res.High)
	}
	if res.MimeType != "image/png" || res.ImageBase64 == "" {
		t.Errorf("encoded image missing: %q", res.MimeType)
	}
}

func TestHandleToolsCall_Compare(t *testing.T) {
	s := New()
	a := createTestImageFile(t, 40, 30, color.Gray{100})
	b := createTestImageFile(t, 40, 30, color.Gray{110})

	var res imaging.CompareResult
	toolResult(t, callTool(t, s, "image_compare", map[string]interface{}{"path_a": a, "path_b": b}), &res)

	if res.MeanAbsDiff != 10 || res.MaxDiff != 10 {
		t.Errorf("diff: got mean %g max %d, want 10/10", res.MeanAbsDiff, res.MaxDiff)
	}
	if res.TotalPixels != 1200 {
		t.Errorf("total pixels: got %d", res.TotalPixels)
	}

	c := createTestImageFile(t, 20, 30, color.Gray{100})
	if data := toolError(t, callTool(t, s, "image_compare", map[string]interface{}{"path_a": a, "path_b": c})); data.Kind != flatten.KindInvalidInput {
		t.Errorf("size mismatch kind: got %q", data.Kind)
	}
}

func TestHandleToolsCall_DetectBoundary(t *testing.T) {
	s := New()
	imgPath := createPageFile(t)

	var res BoundaryResult
	toolResult(t, callTool(t, s, "document_detect_boundary", map[string]interface{}{
		"path":            imgPath,
		"include_overlay": true,
	}), &res)

	if res.Corners.TopLeft.Dist(res.Corners.BottomRight) < 200 {
		t.Errorf("corners too close: %v", res.Corners)
	}
	if res.Corners.TopLeft.X > res.Corners.TopRight.X || res.Corners.TopLeft.Y > res.Corners.BottomLeft.Y {
		t.Errorf("corners not in reading order: %v", res.Corners)
	}
	if res.Width < 200 || res.Height < 140 {
		t.Errorf("target size: got %dx%d", res.Width, res.Height)
	}
	if res.Overlay == nil || res.Overlay.Width != 300 || res.Overlay.Height != 220 {
		t.Errorf("overlay: got %+v", res.Overlay)
	}
}

func TestHandleToolsCall_Flatten(t *testing.T) {
	s := New()
	imgPath := createPageFile(t)

	var res FlattenResult
	toolResult(t, callTool(t, s, "document_flatten", map[string]interface{}{"path": imgPath}), &res)

	if res.Width < 200 || res.Height < 140 {
		t.Errorf("size: got %dx%d", res.Width, res.Height)
	}
	if res.Image == nil || res.Image.Width != res.Width || res.Image.MimeType != "image/png" {
		t.Errorf("inline image: got %+v", res.Image)
	}
	if res.OutputPath != "" || len(res.DebugFiles) != 0 {
		t.Errorf("unexpected outputs: %+v", res)
	}
}

func TestHandleToolsCall_Flatten_OutputPath(t *testing.T) {
	s := New()
	imgPath := createPageFile(t)
	out := filepath.Join(t.TempDir(), "flat.jpg")

	var res FlattenResult
	toolResult(t, callTool(t, s, "document_flatten", map[string]interface{}{
		"path":        imgPath,
		"output_path": out,
	}), &res)

	if res.OutputPath != out {
		t.Errorf("output_path: got %q, want %q", res.OutputPath, out)
	}
	if res.Image != nil {
		t.Error("image should not be inlined when written to a file")
	}
	img, err := imaging.LoadFile(out)
	if err != nil {
		t.Fatalf("output unreadable: %v", err)
	}
	if img.Bounds().Dx() != res.Width || img.Bounds().Dy() != res.Height {
		t.Errorf("output is %v, result says %dx%d", img.Bounds(), res.Width, res.Height)
	}
}

func TestHandleToolsCall_Flatten_Debug(t *testing.T) {
	debugDir := t.TempDir()
	s := New(WithFlattener(flatten.New(flatten.WithDebugDir(debugDir))))
	imgPath := createPageFile(t)

	var res FlattenResult
	toolResult(t, callTool(t, s, "document_flatten", map[string]interface{}{
		"path":         imgPath,
		"emit_debug":   true,
		"format":       "jpeg",
		"return_image": true,
	}), &res)

	if len(res.DebugFiles) != 4 {
		t.Fatalf("debug files: got %v", res.DebugFiles)
	}
	for _, p := range res.DebugFiles {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing debug file: %v", err)
		}
	}
	if res.Image == nil || res.Image.MimeType != "image/jpeg" {
		t.Errorf("inline image: got %+v", res.Image)
	}
}

func TestHandleToolsCall_CropDivider(t *testing.T) {
	s := New()

	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			switch {
			case x >= 100 && x < 105:
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			case x >= 150 && x < 250 && y >= 50 && y < 150:
				img.Set(x, y, color.Black)
			default:
				img.Set(x, y, color.White)
			}
		}
	}
	imgPath := writeImage(t, "divider.png", img)

	var res DividerCropResult
	toolResult(t, callTool(t, s, "document_crop_divider", map[string]interface{}{"path": imgPath}), &res)

	if res.DividerX != 102 {
		t.Errorf("divider_x: got %d, want 102", res.DividerX)
	}
	if res.Bounds != image.Rect(150, 50, 250, 150) {
		t.Errorf("bounds: got %v, want (150,50)-(250,150)", res.Bounds)
	}
	if res.Image == nil || res.Image.Width != 100 || res.Image.Height != 100 {
		t.Errorf("image: got %+v", res.Image)
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New()
	for _, tool := range GetToolDefinitions() {
		_, err := s.executeTool(tool.Name, json.RawMessage(`{invalid`))
		if err == nil {
			t.Errorf("%s: expected error for invalid JSON", tool.Name)
			continue
		}
		if flatten.KindOf(err) != flatten.KindInvalidInput {
			t.Errorf("%s: kind %q, want invalid_input", tool.Name, flatten.KindOf(err))
		}
	}
}
