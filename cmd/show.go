package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/camcal/internal/calibio"
	"github.com/andresmejia3/camcal/internal/types"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the parameters stored in a saved calibration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		res, err := calibio.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", args[0], err)
		}
		printCalibration(res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func printCalibration(res *types.CalibrationResult) {
	if res.RMS > 0 {
		fmt.Fprintf(os.Stdout, "RMS   = %v\n", res.RMS)
	}
	if res.ImageSize.X > 0 && res.ImageSize.Y > 0 {
		fmt.Fprintf(os.Stdout, "size  = %dx%d\n", res.ImageSize.X, res.ImageSize.Y)
	}
	fmt.Fprintf(os.Stdout, "mtx   = %v\n", mat.Formatted(res.CameraMatrix, mat.Prefix("        "), mat.Squeeze()))
	fmt.Fprintf(os.Stdout, "dist  = %v\n", mat.Formatted(res.DistCoeffs, mat.Squeeze()))
	fmt.Fprintf(os.Stdout, "views = %d\n", res.Views())
}
