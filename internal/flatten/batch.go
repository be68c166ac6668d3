package flatten

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/docflat/internal/detection"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
)

// Job is one file to flatten.
type Job struct {
	Input  string
	Output string
}

// ItemResult is the outcome of one Job.
type ItemResult struct {
	Input      string        `yaml:"path"`
	Output     string        `yaml:"output,omitempty"`
	Width      int           `yaml:"width,omitempty"`
	Height     int           `yaml:"height,omitempty"`
	Corners    *geom.Corners `yaml:"corners,omitempty"`
	Error      string        `yaml:"error,omitempty"`
	Kind       Kind          `yaml:"kind,omitempty"`
	Retried    bool          `yaml:"retried,omitempty"`
	DurationMS int64         `yaml:"duration_ms"`
}

// OK reports whether the item was flattened and written.
func (r ItemResult) OK() bool {
	return r.Error == ""
}

// BatchOptions controls RunBatch.
type BatchOptions struct {
	// Workers bounds concurrency. Zero means runtime.NumCPU().
	Workers int

	Format  imaging.OutputFormat
	Quality int

	EmitDebug bool

	// RetryEpsilon, when positive, retries an item that found no boundary
	// once with this polygon-approximation tolerance.
	RetryEpsilon float64
}

// Report summarises a batch run. Items are in job order.
type Report struct {
	Total     int          `yaml:"total"`
	Succeeded int          `yaml:"succeeded"`
	Failed    int          `yaml:"failed"`
	Items     []ItemResult `yaml:"items"`
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// imageExtensions are the inputs PlanJobs picks up from a directory.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// PlanJobs expands inputs into jobs. Directories contribute their image
// files (not recursively), sorted by name. Each output is
// <outDir>/<stem>_flat<ext>; an empty outDir puts it beside the input.
func PlanJobs(inputs []string, outDir string, format imaging.OutputFormat) ([]Job, error) {
	var files []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if !info.IsDir() {
			files = append(files, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", in, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(in, n))
		}
	}

	jobs := make([]Job, 0, len(files))
	for _, in := range files {
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(in)
		}
		stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		jobs = append(jobs, Job{
			Input:  in,
			Output: filepath.Join(dir, stem+"_flat"+format.Extension()),
		})
	}
	return jobs, nil
}

// RunBatch flattens every job with up to opts.Workers running at once. A
// failing item is recorded in the report and never stops the others. When
// ctx is cancelled no further jobs start; the items that never ran are
// reported with the context error, which RunBatch also returns.
func RunBatch(ctx context.Context, f *Flattener, jobs []Job, opts BatchOptions) (*Report, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if opts.Format == "" {
		opts.Format = imaging.FormatPNG
	}

	items := make([]ItemResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		if gctx.Err() != nil {
			items[i] = cancelled(job, gctx.Err())
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				items[i] = cancelled(job, gctx.Err())
				return nil
			}
			items[i] = runJob(f, job, opts)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Total: len(items), Items: items}
	for _, it := range items {
		if it.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	f.logger.Info("batch finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	return report, ctx.Err()
}

func cancelled(job Job, err error) ItemResult {
	return ItemResult{Input: job.Input, Error: err.Error(), Kind: KindInternal}
}

func runJob(f *Flattener, job Job, opts BatchOptions) ItemResult {
	start := time.Now()
	item := ItemResult{Input: job.Input}

	res, err := f.FlattenFile(job.Input, opts.EmitDebug)
	if errors.Is(err, detection.ErrNoDocumentBoundary) && opts.RetryEpsilon > 0 {
		f.logger.Debug("retrying with relaxed tolerance", "path", job.Input, "epsilon", opts.RetryEpsilon)
		item.Retried = true
		res, err = f.With(WithEpsilonFraction(opts.RetryEpsilon)).FlattenFile(job.Input, opts.EmitDebug)
	}
	if err == nil {
		err = res.WriteFile(job.Output, opts.Format, opts.Quality)
	}

	item.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		item.Error = err.Error()
		item.Kind = KindOf(err)
		f.logger.Warn("item failed", "path", job.Input, "kind", item.Kind, "error", err)
		return item
	}

	corners := res.Corners
	item.Output = job.Output
	item.Width = res.Width
	item.Height = res.Height
	item.Corners = &corners
	f.logger.Debug("item flattened", "path", job.Input, "output", job.Output)
	return item
}

// WriteFile encodes the flattened image to path, creating parent
// directories as needed.
func (r *Result) WriteFile(path string, format imaging.OutputFormat, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := imaging.Encode(out, r.Image, format, quality); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
