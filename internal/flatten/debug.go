package flatten

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/docflat/internal/imaging"
)

// Debug artifact suffixes, appended to the input file's stem.
const (
	SuffixBlurred   = "_blurred.png"
	SuffixEdges     = "_edges.png"
	SuffixContour   = "_contour.png"
	SuffixFlattened = "_flattened.png"
)

// DebugPaths returns the artifact paths FlattenFile writes for input when
// debug output is on.
func (f *Flattener) DebugPaths(input string) []string {
	dir := f.debugDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	base := filepath.Join(dir, stem)
	return []string{
		base + SuffixBlurred,
		base + SuffixEdges,
		base + SuffixContour,
		base + SuffixFlattened,
	}
}

func (f *Flattener) writeDebug(input string, src image.Image, det *Detection, res *Result) {
	paths := f.DebugPaths(input)
	if err := os.MkdirAll(filepath.Dir(paths[0]), 0o755); err != nil {
		f.logger.Warn("debug directory unavailable", "dir", filepath.Dir(paths[0]), "error", err)
		return
	}

	save := func(path string, img image.Image) {
		if err := imaging.Save(path, img); err != nil {
			f.logger.Warn("failed to write debug artifact", "path", path, "error", err)
			return
		}
		f.logger.Debug("wrote debug artifact", "path", path)
	}

	if det == nil || det.Edges == nil {
		return
	}
	save(paths[0], det.Edges.Blurred)
	save(paths[1], det.Edges.Edges)

	if !det.Found {
		return
	}
	corners := det.Corners
	if corners == (Detection{}).Corners {
		// Ordering failed; draw the raw contour order.
		q := det.Quad
		corners.TopLeft, corners.TopRight, corners.BottomRight, corners.BottomLeft = q[0], q[1], q[2], q[3]
	}
	overlay, err := imaging.DrawQuadOverlay(src, corners, f.overlay)
	if err != nil {
		f.logger.Warn("failed to draw contour overlay", "error", err)
	} else {
		save(paths[2], overlay)
	}

	if res != nil && res.Image != nil {
		save(paths[3], res.Image)
	}
}
