package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/docflat/internal/flatten"
	"github.com/ironsheep/docflat/internal/geom"
	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/perspective"
)

// boundaryReport is what the boundary command prints.
type boundaryReport struct {
	Path    string       `yaml:"path"`
	Corners geom.Corners `yaml:"corners"`
	Width   int          `yaml:"width"`
	Height  int          `yaml:"height"`
	Overlay string       `yaml:"overlay,omitempty"`
}

func newBoundaryCmd(a *app) *cobra.Command {
	var overlay string

	cmd := &cobra.Command{
		Use:   "boundary <image>",
		Short: "Print the ordered document corners without warping",
		Example: `  docflat boundary receipt.jpg
  docflat boundary receipt.jpg --overlay receipt_corners.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := imaging.LoadFile(args[0])
			if err != nil {
				return err
			}
			f, err := a.flattener()
			if err != nil {
				return err
			}
			det, err := f.Detect(img)
			if err != nil {
				return err
			}

			w, h := perspective.TargetSize(det.Corners)
			report := boundaryReport{Path: args[0], Corners: det.Corners, Width: w, Height: h}

			if overlay != "" {
				drawn, err := imaging.DrawQuadOverlay(img, det.Corners, imaging.DefaultOverlayStyle())
				if err != nil {
					return err
				}
				if err := imaging.Save(overlay, drawn); err != nil {
					return err
				}
				report.Overlay = overlay
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&overlay, "overlay", "", "Also save the image with the boundary drawn on it")

	return cmd
}

func newCropDividerCmd(a *app) *cobra.Command {
	var (
		output string
		params = imaging.DefaultDividerParams()
	)

	cmd := &cobra.Command{
		Use:   "crop-divider <image>",
		Short: "Crop the content to the right of a vertical divider line",
		Long: `Finds the first solid vertical strip scanning from the left and crops the
largest block of non-white content to its right. Useful for screenshots
with a sidebar separated by a rule.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := imaging.LoadFile(args[0])
			if err != nil {
				return err
			}
			res, err := imaging.CropDivider(img, params)
			if err != nil {
				return &flatten.Error{Kind: flatten.KindOf(err), Op: "crop divider", Path: args[0], Err: err}
			}
			if output == "" {
				output = "cropped.png"
			}
			if err := imaging.Save(output, res.Image); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: divider at x=%d, cropped %v\n", output, res.DividerX, res.Bounds)
			a.logger.Debug("divider crop", "divider_x", res.DividerX, "bounds", res.Bounds.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default cropped.png)")
	cmd.Flags().IntVar(&params.LineThickness, "thickness", params.LineThickness, "Divider strip width in pixels")
	cmd.Flags().IntVar(&params.ColorTolerance, "tolerance", params.ColorTolerance, "Per-channel colour tolerance within the strip")
	cmd.Flags().Uint8Var(&params.WhiteThreshold, "white-threshold", params.WhiteThreshold, "Gray level at or above which a pixel is background")

	return cmd
}
