package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/imaging"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		outDir       string
		format       string
		workers      int
		retryEpsilon float64
		debug        bool
		reportPath   string
	)

	cmd := &cobra.Command{
		Use:   "batch <image|dir>...",
		Short: "Flatten many documents concurrently",
		Long: `Flattens every input image, expanding directories to the images they
contain. A failed page is recorded in the report and does not stop the
others. The YAML report goes to --report, or stdout when unset.

The command exits non-zero when any page failed.`,
		Example: `  # Flatten a folder of scans into out/ with 8 workers
  docflat batch scans/ --out out --workers 8

  # Retry pages with no boundary using a looser polygon tolerance
  docflat batch scans/ --retry-epsilon 0.04 --report report.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.BatchOptions(debug)
			if format != "" {
				f, err := imaging.ParseOutputFormat(format)
				if err != nil {
					return err
				}
				opts.Format = f
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if cmd.Flags().Changed("retry-epsilon") {
				opts.RetryEpsilon = retryEpsilon
			}

			jobs, err := flatten.PlanJobs(args, outDir, opts.Format)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return errors.New("no images found in inputs")
			}

			f, err := a.flattener()
			if err != nil {
				return err
			}
			report, runErr := flatten.RunBatch(cmd.Context(), f, jobs, opts)

			w := cmd.OutOrStdout()
			if reportPath != "" {
				file, err := os.Create(reportPath)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				if err := report.WriteYAML(file); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(w, "%d/%d flattened, report in %s\n", report.Succeeded, report.Total, reportPath)
			} else if err := report.WriteYAML(w); err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d pages failed", report.Failed, report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default beside each input)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: png or jpeg (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent workers (default from config, 0 = NumCPU)")
	cmd.Flags().Float64Var(&retryEpsilon, "retry-epsilon", 0, "Retry tolerance for pages with no boundary (0 disables)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Write intermediate debug images for every page")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the YAML report to this file")

	return cmd
}
