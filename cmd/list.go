package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listDevice int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded calibrations in the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if DB == nil {
			return errNoHistory
		}

		calibrations, err := DB.ListCalibrations(cmd.Context(), listDevice)
		if err != nil {
			return fmt.Errorf("failed to list calibrations: %w", err)
		}

		if len(calibrations) == 0 {
			fmt.Println("No calibrations found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCAM\tGRID\tSIZE\tVIEWS\tRMS\tFILE\tCREATED")
		fmt.Fprintln(w, "--\t---\t----\t----\t-----\t---\t----\t-------")

		for _, c := range calibrations {
			fmt.Fprintf(w, "%s\t%d\t%dx%d\t%dx%d\t%d\t%.4f\t%s\t%s\n",
				c.ID.String()[:8], c.Device, c.GridCols, c.GridRows,
				c.ImageWidth, c.ImageHeight, c.SampleCount, c.RMS, c.OutputPath,
				c.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().IntVarP(&listDevice, "cam", "c", -1, "Only show calibrations for this webcam index (-1 for all)")
	rootCmd.AddCommand(listCmd)
}
