package flatten

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/docflat/internal/detection"
	"github.com/ironsheep/docflat/internal/geom"
	docimg "github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/perspective"
)

// pageQuad is a page photographed at an angle on an 800×600 frame.
var pageQuad = geom.Corners{
	TopLeft:     geom.Pt(150, 120),
	TopRight:    geom.Pt(650, 80),
	BottomRight: geom.Pt(700, 500),
	BottomLeft:  geom.Pt(100, 520),
}

// createPageImage paints a white convex quad on a black canvas.
func createPageImage(width, height int, c geom.Corners) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	q := c.Quad()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := geom.Pt(float64(x)+0.5, float64(y)+0.5)
			inside := true
			for i := 0; i < 4; i++ {
				if geom.Cross(q[i], q[(i+1)%4], p) < 0 {
					inside = false
					break
				}
			}
			if inside {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

// createGradientPage paints a horizontal gray ramp inside page on a black
// canvas.
func createGradientPage(width, height int, page image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if image.Pt(x, y).In(page) {
				v := uint8(150 + 80*(x-page.Min.X)/page.Dx())
				c = color.NRGBA{v, v, v, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
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

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFlatten_PerspectivePage(t *testing.T) {
	src := createPageImage(800, 600, pageQuad)

	res, err := New().Flatten(src)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	wantW, wantH := perspective.TargetSize(pageQuad)
	if !near(float64(res.Width), float64(wantW), 6) || !near(float64(res.Height), float64(wantH), 6) {
		t.Errorf("size: got %dx%d, want about %dx%d", res.Width, res.Height, wantW, wantH)
	}
	if res.Image.Bounds() != image.Rect(0, 0, res.Width, res.Height) {
		t.Errorf("image bounds %v do not match %dx%d", res.Image.Bounds(), res.Width, res.Height)
	}

	got := res.Corners.Quad()
	want := pageQuad.Quad()
	for i := range want {
		if got[i].Dist(want[i]) > 4 {
			t.Errorf("corner %d: got %v, want near %v", i, got[i], want[i])
		}
	}

	// The page interior maps to white.
	c := res.Image.NRGBAAt(res.Width/2, res.Height/2)
	if c.R < 250 || c.G < 250 || c.B < 250 {
		t.Errorf("centre pixel: got %v, want white", c)
	}
}

func TestFlatten_DoesNotModifyInput(t *testing.T) {
	src := createPageImage(400, 300, geom.Corners{
		TopLeft: geom.Pt(60, 40), TopRight: geom.Pt(340, 50),
		BottomRight: geom.Pt(330, 260), BottomLeft: geom.Pt(70, 250),
	})
	before := append([]uint8(nil), src.Pix...)

	if _, err := New().Flatten(src); err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if !bytes.Equal(before, src.Pix) {
		t.Error("Flatten modified its input")
	}
}

func TestFlatten_AlreadyFlatPage(t *testing.T) {
	page := image.Rect(10, 10, 230, 170)
	src := createGradientPage(240, 180, page)

	res, err := New().Flatten(src)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if !near(float64(res.Width), float64(page.Dx()), 3) || !near(float64(res.Height), float64(page.Dy()), 3) {
		t.Fatalf("size: got %dx%d, want about %dx%d", res.Width, res.Height, page.Dx(), page.Dy())
	}

	// Resample to the page size and compare the interior.
	got := imaging.Resize(res.Image, page.Dx(), page.Dy(), imaging.Linear)
	want := imaging.Crop(src, page)
	inner := image.Rect(20, 20, page.Dx()-20, page.Dy()-20)

	cmp, err := docimg.CompareImages(imaging.Crop(got, inner), imaging.Crop(want, inner))
	if err != nil {
		t.Fatalf("CompareImages failed: %v", err)
	}
	if cmp.MeanAbsDiff > 2 {
		t.Errorf("mean abs diff: got %.2f, want < 2", cmp.MeanAbsDiff)
	}
}

func TestFlatten_NoDocument(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 150))
	for i := range src.Pix {
		src.Pix[i] = 128
	}

	_, err := New().Flatten(src)
	if !errors.Is(err, detection.ErrNoDocumentBoundary) {
		t.Fatalf("got %v, want ErrNoDocumentBoundary", err)
	}
	if KindOf(err) != KindNoDocumentBoundary {
		t.Errorf("kind: got %q", KindOf(err))
	}
	if HTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422", HTTPStatus(err))
	}
}

func TestFlatten_EmptyImage(t *testing.T) {
	_, err := New().Flatten(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	if KindOf(err) != KindImageDecode {
		t.Errorf("got %v (kind %q), want image_decode", err, KindOf(err))
	}
}

// fixedSelector always returns the same quad.
type fixedSelector geom.Quad

func (s fixedSelector) SelectQuad([]detection.Contour) (geom.Quad, error) {
	return geom.Quad(s), nil
}

func TestFlatten_DegenerateBoundary(t *testing.T) {
	src := createPageImage(200, 150, geom.Corners{
		TopLeft: geom.Pt(20, 20), TopRight: geom.Pt(180, 20),
		BottomRight: geom.Pt(180, 130), BottomLeft: geom.Pt(20, 130),
	})
	collinear := fixedSelector{geom.Pt(10, 10), geom.Pt(50, 10), geom.Pt(90, 10), geom.Pt(130, 10)}

	_, err := New(WithSelector(collinear)).Flatten(src)
	if !errors.Is(err, perspective.ErrDegenerateTransform) {
		t.Fatalf("got %v, want ErrDegenerateTransform", err)
	}
	if KindOf(err) != KindDegenerateTransform {
		t.Errorf("kind: got %q", KindOf(err))
	}
}

func TestFlatten_AmbiguousCorners(t *testing.T) {
	src := createPageImage(200, 150, geom.Corners{
		TopLeft: geom.Pt(20, 20), TopRight: geom.Pt(180, 20),
		BottomRight: geom.Pt(180, 130), BottomLeft: geom.Pt(20, 130),
	})
	diamond := fixedSelector{geom.Pt(100, 10), geom.Pt(150, 60), geom.Pt(100, 110), geom.Pt(50, 60)}

	_, err := New(WithSelector(diamond)).Flatten(src)
	if !errors.Is(err, detection.ErrAmbiguousCornerOrdering) {
		t.Fatalf("got %v, want ErrAmbiguousCornerOrdering", err)
	}

	// The angular orderer labels the same diamond.
	res, err := New(WithSelector(diamond), WithOrderer(detection.CentroidAngleOrderer{})).Flatten(src)
	if err != nil {
		t.Fatalf("CentroidAngleOrderer: %v", err)
	}
	if res.Width < 1 || res.Height < 1 {
		t.Errorf("size: got %dx%d", res.Width, res.Height)
	}
}

func TestFlatten_DetectMaxDim(t *testing.T) {
	src := createPageImage(800, 600, pageQuad)

	res, err := New(WithDetectMaxDim(400)).Flatten(src)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	// Corners come back in full-resolution coordinates.
	got := res.Corners.Quad()
	want := pageQuad.Quad()
	for i := range want {
		if got[i].Dist(want[i]) > 8 {
			t.Errorf("corner %d: got %v, want near %v", i, got[i], want[i])
		}
	}
}

func TestFlattenFile_DecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.png")},
		{"not an image", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().FlattenFile(tt.path, false)
			if KindOf(err) != KindImageDecode {
				t.Fatalf("got %v (kind %q), want image_decode", err, KindOf(err))
			}
			if HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", HTTPStatus(err))
			}
			var fe *Error
			if !errors.As(err, &fe) || fe.Path != tt.path {
				t.Errorf("error should carry the path, got %v", err)
			}
		})
	}

	_, err := New().FlattenFile(garbage, false)
	if !errors.Is(err, docimg.ErrDecode) {
		t.Errorf("got %v, want ErrDecode in the chain", err)
	}

	_, err = New().FlattenFile("", false)
	if KindOf(err) != KindInvalidInput {
		t.Errorf("empty path: got kind %q, want invalid_input", KindOf(err))
	}
}

func TestFlattenBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createPageImage(400, 300, geom.Corners{
		TopLeft: geom.Pt(60, 40), TopRight: geom.Pt(340, 50),
		BottomRight: geom.Pt(330, 260), BottomLeft: geom.Pt(70, 250),
	})); err != nil {
		t.Fatal(err)
	}

	res, err := New().FlattenBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("FlattenBytes failed: %v", err)
	}
	if res.Width < 250 || res.Height < 180 {
		t.Errorf("size: got %dx%d", res.Width, res.Height)
	}

	if _, err := New().FlattenBytes([]byte{0x89, 'P', 'N', 'G'}); KindOf(err) != KindImageDecode {
		t.Errorf("truncated input: got %v", err)
	}
}

func TestFlattenFile_DebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, "scan.png", createPageImage(400, 300, geom.Corners{
		TopLeft: geom.Pt(60, 40), TopRight: geom.Pt(340, 50),
		BottomRight: geom.Pt(330, 260), BottomLeft: geom.Pt(70, 250),
	}))
	debugDir := filepath.Join(dir, "debug")
	f := New(WithDebugDir(debugDir))

	if _, err := f.FlattenFile(input, false); err != nil {
		t.Fatalf("FlattenFile failed: %v", err)
	}
	if _, err := os.Stat(debugDir); !os.IsNotExist(err) {
		t.Fatalf("debug directory created without emitDebug: %v", err)
	}

	res, err := f.FlattenFile(input, true)
	if err != nil {
		t.Fatalf("FlattenFile failed: %v", err)
	}
	for _, p := range f.DebugPaths(input) {
		if filepath.Dir(p) != debugDir {
			t.Errorf("artifact %s outside debug dir", p)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing artifact: %v", err)
		}
	}

	flat, err := docimg.LoadFile(filepath.Join(debugDir, "scan"+SuffixFlattened))
	if err != nil {
		t.Fatalf("failed to read flattened artifact: %v", err)
	}
	if flat.Bounds().Dx() != res.Width || flat.Bounds().Dy() != res.Height {
		t.Errorf("flattened artifact is %v, result is %dx%d", flat.Bounds(), res.Width, res.Height)
	}
}

func TestFlattenFile_DebugArtifactsOnFailure(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, "blank.png", image.NewGray(image.Rect(0, 0, 120, 90)))
	f := New()

	if _, err := f.FlattenFile(input, true); !errors.Is(err, detection.ErrNoDocumentBoundary) {
		t.Fatalf("got %v, want ErrNoDocumentBoundary", err)
	}

	// No debug dir means next to the input.
	paths := f.DebugPaths(input)
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing artifact: %v", err)
		}
	}
	for _, p := range paths[2:] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("unexpected artifact %s", p)
		}
	}
}

func TestFlattener_Concurrent(t *testing.T) {
	src := createPageImage(400, 300, geom.Corners{
		TopLeft: geom.Pt(60, 40), TopRight: geom.Pt(340, 50),
		BottomRight: geom.Pt(330, 260), BottomLeft: geom.Pt(70, 250),
	})
	f := New()

	want, err := f.Flatten(src)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Flatten(src)
			if err != nil {
				errs <- err
				return
			}
			if got.Corners != want.Corners || !bytes.Equal(got.Image.Pix, want.Image.Pix) {
				errs <- errors.New("concurrent result differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestWithEpsilonFraction(t *testing.T) {
	base := New(WithSelector(detection.RectangularitySelector{EpsilonFraction: 0.02, MinArea: 10}))
	relaxed := base.With(WithEpsilonFraction(0.05))

	got, ok := relaxed.selector.(detection.RectangularitySelector)
	if !ok || got.EpsilonFraction != 0.05 || got.MinArea != 10 {
		t.Errorf("relaxed selector: got %#v", relaxed.selector)
	}
	if base.selector.(detection.RectangularitySelector).EpsilonFraction != 0.02 {
		t.Error("With modified the original Flattener")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		kind   Kind
		status int
	}{
		{nil, "", http.StatusOK},
		{docimg.ErrDecode, KindImageDecode, http.StatusBadRequest},
		{ErrInvalidInput, KindInvalidInput, http.StatusBadRequest},
		{detection.ErrNoDocumentBoundary, KindNoDocumentBoundary, http.StatusUnprocessableEntity},
		{detection.ErrAmbiguousCornerOrdering, KindAmbiguousCornerOrdering, http.StatusUnprocessableEntity},
		{perspective.ErrDegenerateTransform, KindDegenerateTransform, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v): got %q, want %q", tt.err, got, tt.kind)
		}
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v): got %d, want %d", tt.err, got, tt.status)
		}
	}

	e := &Error{Kind: KindNoDocumentBoundary, Op: "find boundary", Path: "a.png"}
	if !errors.Is(e, detection.ErrNoDocumentBoundary) {
		t.Error("Error should match its kind's sentinel")
	}
	if got, want := e.Error(), "a.png: find boundary: no_document_boundary"; got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}
