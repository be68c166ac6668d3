// Package config holds the docflat settings shared by the CLI, the MCP
// server and the HTTP API.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// DOCFLAT_* environment variables, then command-line flags. The CLI applies
// the last layer itself; this package covers the first three.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/docflat/internal/detection"
	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/imaging"
)

// Selector names.
const (
	SelectorLargest        = "largest"
	SelectorRectangularity = "rectangularity"
)

// Orderer names.
const (
	OrdererSumDiff  = "sumdiff"
	OrdererCentroid = "centroid"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCFLAT_"

// Config is the full set of tunables.
type Config struct {
	Edge imaging.EdgeParams `yaml:"edge"`

	EpsilonFraction float64 `yaml:"epsilon_fraction"`
	Selector        string  `yaml:"selector"`
	// MinArea is the smallest contour area, in detection pixels, the
	// rectangularity selector accepts.
	MinArea  float64 `yaml:"min_area"`
	Orderer  string  `yaml:"orderer"`
	MaxDim   int     `yaml:"detect_max_dim"`
	DebugDir string  `yaml:"debug_dir"`

	OutputFormat string `yaml:"output_format"`
	JPEGQuality  int    `yaml:"jpeg_quality"`

	Workers      int     `yaml:"workers"`
	RetryEpsilon float64 `yaml:"retry_epsilon"`

	OCRLanguage string `yaml:"ocr_language"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Edge:            imaging.DefaultEdgeParams(),
		EpsilonFraction: detection.DefaultEpsilonFraction,
		Selector:        SelectorLargest,
		Orderer:         OrdererSumDiff,
		OutputFormat:    string(imaging.FormatPNG),
		JPEGQuality:     imaging.DefaultJPEGQuality,
		OCRLanguage:     "eng",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
	}
}

// Load reads path over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from DOCFLAT_* variables looked up with
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	num("KERNEL_SIZE", &c.Edge.KernelSize)
	float("SIGMA", &c.Edge.Sigma)
	float("CANNY_LOW", &c.Edge.Low)
	float("CANNY_HIGH", &c.Edge.High)
	float("EPSILON_FRACTION", &c.EpsilonFraction)
	str("SELECTOR", &c.Selector)
	float("MIN_AREA", &c.MinArea)
	str("ORDERER", &c.Orderer)
	num("DETECT_MAX_DIM", &c.MaxDim)
	str("DEBUG_DIR", &c.DebugDir)
	str("OUTPUT_FORMAT", &c.OutputFormat)
	num("JPEG_QUALITY", &c.JPEGQuality)
	num("WORKERS", &c.Workers)
	float("RETRY_EPSILON", &c.RetryEpsilon)
	str("OCR_LANGUAGE", &c.OCRLanguage)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Edge.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.EpsilonFraction <= 0 || c.EpsilonFraction >= 1 {
		errs = append(errs, fmt.Errorf("epsilon_fraction must be in (0, 1), got %g", c.EpsilonFraction))
	}
	if c.RetryEpsilon < 0 || c.RetryEpsilon >= 1 {
		errs = append(errs, fmt.Errorf("retry_epsilon must be in [0, 1), got %g", c.RetryEpsilon))
	}
	if _, err := c.QuadSelector(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CornerOrderer(); err != nil {
		errs = append(errs, err)
	}
	if c.MinArea < 0 {
		errs = append(errs, fmt.Errorf("min_area must not be negative, got %g", c.MinArea))
	}
	if c.MaxDim < 0 {
		errs = append(errs, fmt.Errorf("detect_max_dim must not be negative, got %d", c.MaxDim))
	}
	if _, err := imaging.ParseOutputFormat(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be in [1, 100], got %d", c.JPEGQuality))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// QuadSelector builds the configured boundary selection policy.
func (c Config) QuadSelector() (detection.QuadSelector, error) {
	switch strings.ToLower(c.Selector) {
	case "", SelectorLargest:
		return detection.LargestQuadSelector{EpsilonFraction: c.EpsilonFraction}, nil
	case SelectorRectangularity:
		return detection.RectangularitySelector{EpsilonFraction: c.EpsilonFraction, MinArea: c.MinArea}, nil
	}
	return nil, fmt.Errorf("unknown selector %q (want %s or %s)", c.Selector, SelectorLargest, SelectorRectangularity)
}

// CornerOrderer builds the configured corner labelling policy.
func (c Config) CornerOrderer() (detection.CornerOrderer, error) {
	switch strings.ToLower(c.Orderer) {
	case "", OrdererSumDiff:
		return detection.SumDiffOrderer{}, nil
	case OrdererCentroid:
		return detection.CentroidAngleOrderer{}, nil
	}
	return nil, fmt.Errorf("unknown orderer %q (want %s or %s)", c.Orderer, OrdererSumDiff, OrdererCentroid)
}

// Format is the parsed output format. Call Validate first.
func (c Config) Format() imaging.OutputFormat {
	f, err := imaging.ParseOutputFormat(c.OutputFormat)
	if err != nil {
		return imaging.FormatPNG
	}
	return f
}

// Flattener builds a Flattener from the configuration.
func (c Config) Flattener(logger *slog.Logger) (*flatten.Flattener, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sel, _ := c.QuadSelector()
	ord, _ := c.CornerOrderer()
	return flatten.New(
		flatten.WithEdgeParams(c.Edge),
		flatten.WithSelector(sel),
		flatten.WithOrderer(ord),
		flatten.WithDetectMaxDim(c.MaxDim),
		flatten.WithDebugDir(c.DebugDir),
		flatten.WithLogger(logger),
	), nil
}

// BatchOptions builds batch settings from the configuration.
func (c Config) BatchOptions(emitDebug bool) flatten.BatchOptions {
	return flatten.BatchOptions{
		Workers:      c.Workers,
		Format:       c.Format(),
		Quality:      c.JPEGQuality,
		EmitDebug:    emitDebug,
		RetryEpsilon: c.RetryEpsilon,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
