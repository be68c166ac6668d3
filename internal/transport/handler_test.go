package transport

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(maxBody int64) http.Handler {
	return NewHandler(Options{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxBodyBytes: maxBody,
		Version:      "test",
	})
}

// pagePNG renders a white quadrilateral on black with corners
// (40,30) (260,36) (250,190) (46,180).
func pagePNG(t *testing.T) []byte {
	t.Helper()
	quad := geom.Quad{geom.Pt(40, 30), geom.Pt(260, 36), geom.Pt(250, 190), geom.Pt(46, 180)}
	img := image.NewGray(image.Rect(0, 0, 300, 220))
	for y := 0; y < 220; y++ {
		for x := 0; x < 300; x++ {
			p := geom.Pt(float64(x)+0.5, float64(y)+0.5)
			inside := true
			for i := range quad {
				if geom.Cross(quad[i], quad[(i+1)%4], p) < 0 {
					inside = false
					break
				}
			}
			if inside {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return encodePNG(t, img)
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 90))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	return buf.Bytes()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "available" || body["version"] != "test" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestFlatten_RawBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/flatten", bytes.NewReader(pagePNG(t)))
	rec := httptest.NewRecorder()
	newTestHandler(0).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if corners := rec.Header().Get(CornersHeader); strings.Count(corners, ";") != 3 {
		t.Errorf("%s: got %q", CornersHeader, corners)
	}

	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() < 200 || b.Dx() > 240 || b.Dy() < 140 || b.Dy() > 170 {
		t.Errorf("flattened size %dx%d, want about 220x154", b.Dx(), b.Dy())
	}
}

func TestFlatten_Multipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "page.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(pagePNG(t))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/flatten?format=jpeg&quality=80", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestHandler(0).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if _, err := imaging.DecodeBytes(rec.Body.Bytes()); err != nil {
		t.Errorf("response is not an image: %v", err)
	}
}

func TestFlatten_Errors(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		body     []byte
		maxBody  int64
		wantCode int
		wantKind flatten.Kind
	}{
		{"no document", "/v1/flatten", blankPNG(t), 0, http.StatusUnprocessableEntity, flatten.KindNoDocumentBoundary},
		{"garbage", "/v1/flatten", []byte("not an image"), 0, http.StatusBadRequest, flatten.KindImageDecode},
		{"empty body", "/v1/flatten", nil, 0, http.StatusBadRequest, flatten.KindInvalidInput},
		{"bad format", "/v1/flatten?format=gif", pagePNG(t), 0, http.StatusBadRequest, flatten.KindInvalidInput},
		{"bad quality", "/v1/flatten?quality=0", pagePNG(t), 0, http.StatusBadRequest, flatten.KindInvalidInput},
		{"too large", "/v1/flatten", pagePNG(t), 64, http.StatusBadRequest, flatten.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, bytes.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newTestHandler(tt.maxBody).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", resp.Kind, tt.wantKind)
			}
			if resp.Error != http.StatusText(tt.wantCode) {
				t.Errorf("error: got %q", resp.Error)
			}
		})
	}
}

func TestBoundary(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/boundary", bytes.NewReader(pagePNG(t)))
	rec := httptest.NewRecorder()
	newTestHandler(0).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp BoundaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	want := geom.Corners{
		TopLeft:     geom.Pt(40, 30),
		TopRight:    geom.Pt(260, 36),
		BottomRight: geom.Pt(250, 190),
		BottomLeft:  geom.Pt(46, 180),
	}
	got, exp := resp.Corners.Quad(), want.Quad()
	for i := range got {
		if got[i].Dist(exp[i]) > 4 {
			t.Errorf("corner %d: got %v, want near %v", i, got[i], exp[i])
		}
	}
	if resp.Width < 200 || resp.Height < 140 {
		t.Errorf("target size %dx%d too small", resp.Width, resp.Height)
	}
}

func TestBoundary_NoDocument(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/boundary", bytes.NewReader(blankPNG(t)))
	rec := httptest.NewRecorder()
	newTestHandler(0).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Kind != flatten.KindNoDocumentBoundary {
		t.Errorf("kind: got %q", resp.Kind)
	}
}

func TestFormatCorners(t *testing.T) {
	c := geom.Corners{
		TopLeft:     geom.Pt(1, 2),
		TopRight:    geom.Pt(3.5, 4),
		BottomRight: geom.Pt(5, 6),
		BottomLeft:  geom.Pt(7, 8.5),
	}
	if got, want := FormatCorners(c), "1.0,2.0;3.5,4.0;5.0,6.0;7.0,8.5"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
