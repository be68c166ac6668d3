// Package cli implements the docflat command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ironsheep/docflat/internal/config"
	"github.com/ironsheep/docflat/internal/flatten"
)

// app is the state shared by every subcommand once the root has loaded
// configuration.
type app struct {
	configPath string
	logLevel   string
	version    string

	cfg    config.Config
	logger *slog.Logger
}

// flattener builds a Flattener from the loaded configuration.
func (a *app) flattener() (*flatten.Flattener, error) {
	return a.cfg.Flattener(a.logger)
}

// NewRootCmd builds the docflat command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	cmd := &cobra.Command{
		Use:   "docflat",
		Short: "Detect a photographed document and flatten it to a top-down view",
		Long: `docflat finds the four corners of a paper document in a photo and warps
the page to a rectangular, fronto-parallel image.

Tunables come from a YAML file (--config), then DOCFLAT_* environment
variables, then flags, in increasing precedence. A .env file in the working
directory supplies environment variables that are not already set, including
DOCFLAT_CONFIG as the default for --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file (default $DOCFLAT_CONFIG)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	cmd.AddCommand(
		newFlattenCmd(a),
		newBatchCmd(a),
		newBoundaryCmd(a),
		newCropDividerCmd(a),
		newMCPCmd(a),
		newServeCmd(a),
	)

	return cmd
}

// setup runs after the .env file is loaded so DOCFLAT_CONFIG may come from
// either source.
func (a *app) setup(stderr io.Writer) error {
	if a.configPath == "" {
		a.configPath = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}
