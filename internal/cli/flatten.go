package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/ocr"
)

func newFlattenCmd(a *app) *cobra.Command {
	var (
		output   string
		format   string
		quality  int
		debug    bool
		withText bool
	)

	cmd := &cobra.Command{
		Use:   "flatten <image>",
		Short: "Flatten one photographed document",
		Long: `Detects the document boundary in <image>, orders its corners and warps the
page to a top-down rectangle.

With --debug the intermediate stages are written as well:
<stem>_blurred.png, <stem>_edges.png, <stem>_contour.png and
<stem>_flattened.png, in debug_dir or beside the input.`,
		Example: `  # Write receipt_flat.png next to the input
  docflat flatten receipt.jpg

  # JPEG output with debug images
  docflat flatten receipt.jpg -o out/receipt.jpg --format jpeg --debug

  # Also print the recognised text
  docflat flatten letter.png --ocr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]

			outFormat := a.cfg.Format()
			if format != "" {
				f, err := imaging.ParseOutputFormat(format)
				if err != nil {
					return err
				}
				outFormat = f
			}
			if quality == 0 {
				quality = a.cfg.JPEGQuality
			}
			if output == "" {
				stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				output = filepath.Join(filepath.Dir(input), stem+"_flat"+outFormat.Extension())
			}

			if withText {
				if err := ocr.Check(); err != nil {
					return err
				}
			}

			f, err := a.flattener()
			if err != nil {
				return err
			}
			res, err := f.FlattenFile(input, debug)
			if err != nil {
				return err
			}
			if err := res.WriteFile(output, outFormat, quality); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %dx%d %s\n", output, res.Width, res.Height, res.Corners)
			if debug {
				for _, p := range f.DebugPaths(input) {
					fmt.Fprintf(w, "debug: %s\n", p)
				}
			}

			if withText {
				text, err := ocr.ExtractText(res.Image, ocr.Options{Language: a.cfg.OCRLanguage})
				if err != nil {
					return fmt.Errorf("ocr failed: %w", err)
				}
				fmt.Fprintln(w, strings.TrimSpace(text.FullText))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <stem>_flat.<ext> beside the input)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: png or jpeg (default from config)")
	cmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1-100 (default from config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Write intermediate debug images")
	cmd.Flags().BoolVar(&withText, "ocr", false, "Run OCR on the flattened page and print the text")

	return cmd
}
