package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/camcal/internal/calibio"
	"github.com/andresmejia3/camcal/internal/pattern"
	"github.com/andresmejia3/camcal/internal/session"
	"github.com/andresmejia3/camcal/internal/store"
	"github.com/andresmejia3/camcal/internal/types"
	"github.com/andresmejia3/camcal/internal/utils"
	"github.com/andresmejia3/camcal/internal/vision"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// CalibrateOptions holds the flags of the calibrate command.
type CalibrateOptions struct {
	GridSize   string
	Cam        int
	Output     string
	Format     string
	SquareSize float64
	Width      int
	Height     int
	Window     string
}

var calibrateOpts CalibrateOptions

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Capture chessboard views from a webcam and compute the camera matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCalibrate(cmd.Context(), calibrateOpts)
	},
}

func init() {
	calibrateCmd.Flags().StringVarP(&calibrateOpts.GridSize, "grid-size", "g", pattern.DefaultGrid.String(), "Inner corners of the chessboard, as COLSxROWS (e.g. 10x7)")
	calibrateCmd.Flags().IntVarP(&calibrateOpts.Cam, "cam", "c", 0, "Webcam device index")
	calibrateCmd.Flags().StringVarP(&calibrateOpts.Output, "output", "o", "calib", "Output file base name (extension is added from --format)")
	calibrateCmd.Flags().StringVarP(&calibrateOpts.Format, "format", "f", string(calibio.FormatNPZ), "Output format: npz or json")
	calibrateCmd.Flags().Float64VarP(&calibrateOpts.SquareSize, "square-size", "s", 1.0, "Side length of one chessboard square, in your unit of choice")
	calibrateCmd.Flags().IntVar(&calibrateOpts.Width, "width", 0, "Requested capture width (0 keeps the device default)")
	calibrateCmd.Flags().IntVar(&calibrateOpts.Height, "height", 0, "Requested capture height (0 keeps the device default)")
	calibrateCmd.Flags().StringVar(&calibrateOpts.Window, "window", "img", "Preview window title")

	rootCmd.AddCommand(calibrateCmd)
}

// calibrateSettings is the validated form of CalibrateOptions.
type calibrateSettings struct {
	session session.Config
	format  calibio.Format
}

func validateCalibrateFlags(opts *CalibrateOptions) (calibrateSettings, error) {
	var s calibrateSettings

	grid, err := pattern.ParseGridSize(opts.GridSize)
	if err != nil {
		return s, fmt.Errorf("invalid grid size: %w", err)
	}
	format, err := calibio.ParseFormat(opts.Format)
	if err != nil {
		return s, err
	}
	if opts.Cam < 0 {
		return s, fmt.Errorf("invalid webcam index: must be >= 0, got %d", opts.Cam)
	}
	if opts.Output == "" {
		return s, errors.New("output name must not be empty")
	}
	if opts.SquareSize <= 0 {
		return s, fmt.Errorf("invalid square size: must be > 0, got %f", opts.SquareSize)
	}
	if opts.Width < 0 || opts.Height < 0 {
		return s, fmt.Errorf("invalid resolution %dx%d", opts.Width, opts.Height)
	}
	if opts.Window == "" {
		opts.Window = "img"
	}

	s.session = session.DefaultConfig()
	s.session.Grid = grid
	s.session.SquareSize = opts.SquareSize
	s.format = format
	return s, nil
}

func printBanner(w io.Writer, grid pattern.GridSize) {
	fmt.Fprintln(w, "*** CAMERA CALIBRATION TOOL for OPENCV ***")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Present %s chess board pattern to the webCam\n", grid)
	fmt.Fprintln(w, "The detected corners will be marked when the program detects the corners")
	fmt.Fprintln(w, "Calibration may require >10 data to generate accurate camera matrix and distortion data")
	fmt.Fprintln(w, "Keys:")
	fmt.Fprintln(w, "  SPACE : Capture a chess board corner data")
	fmt.Fprintln(w, "  'c'   : Generate the camera calibration data and exit the program")
	fmt.Fprintln(w, "  ESC   : Exit the program")
}

// runCalibrate opens the webcam and preview window, runs the capture session and records the result.
func runCalibrate(ctx context.Context, opts CalibrateOptions) error {
	settings, err := validateCalibrateFlags(&opts)
	if err != nil {
		utils.ShowError("Invalid flags", err)
		return err
	}

	cam, err := vision.OpenCamera(vision.CameraOptions{
		Device: opts.Cam,
		Width:  opts.Width,
		Height: opts.Height,
	})
	if err != nil {
		utils.ShowError(fmt.Sprintf("Failed to open webcam(%d)", opts.Cam), err)
		return err
	}

	printBanner(os.Stdout, settings.session.Grid)

	reporter := newConsoleReporter(os.Stderr)
	sess := session.New(
		settings.session,
		cam,
		vision.NewWindow(opts.Window),
		vision.OpenCV{},
		calibio.Writer{Base: opts.Output, Format: settings.format},
		reporter,
	)

	summary, err := sess.Run(ctx)
	reporter.finish()
	if err != nil {
		if errors.Is(err, session.ErrCalibrationSolve) {
			utils.ShowError("Calibration failed", err)
		} else {
			utils.ShowError("Calibration session failed", err)
		}
		return err
	}

	switch summary.Outcome {
	case session.OutcomeAborted:
		fmt.Fprintf(os.Stderr, "👋 Exited with %d captured views, nothing saved.\n", summary.Samples)
	case session.OutcomeEndOfStream:
		fmt.Fprintf(os.Stderr, "📴 Webcam stopped delivering frames, nothing saved.\n")
	case session.OutcomeCancelled:
		fmt.Fprintf(os.Stderr, "🛑 Interrupted, nothing saved.\n")
	case session.OutcomeSaved:
		recordHistory(ctx, opts, settings, summary)
	}
	return nil
}

// recordHistory stores a saved calibration when a history database is configured.
// The file is already on disk, so a failure here is only a warning.
func recordHistory(ctx context.Context, opts CalibrateOptions, settings calibrateSettings, summary session.Summary) {
	if DB == nil || summary.Calibration == nil {
		return
	}
	res := summary.Calibration
	id, err := DB.InsertCalibration(ctx, store.Calibration{
		Device:      opts.Cam,
		GridCols:    settings.session.Grid.Cols,
		GridRows:    settings.session.Grid.Rows,
		ImageWidth:  res.ImageSize.X,
		ImageHeight: res.ImageSize.Y,
		SampleCount: summary.Samples,
		RMS:         res.RMS,
		Matrix:      flatten(res.CameraMatrix),
		Dist:        flatten(res.DistCoeffs),
		OutputPath:  summary.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to record calibration history: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "🗄️  Recorded calibration %s\n", id)
}

func flatten(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// consoleReporter prints session progress: a live capture counter while
// collecting views, then the solved parameters.
type consoleReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newConsoleReporter(w io.Writer) *consoleReporter {
	return &consoleReporter{
		w: w,
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("📸 Captured"),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("views"),
		),
	}
}

func (r *consoleReporter) Captured(count int) {
	// Set only fails when the counter cannot be rendered; capture goes on regardless
	_ = r.bar.Set(count)
}

func (r *consoleReporter) Calibrating(samples int) {
	r.finish()
	fmt.Fprintf(r.w, "\n🧮 Calculating with %d views...", samples)
}

func (r *consoleReporter) Calibrated(res *types.CalibrationResult) {
	fmt.Fprintf(r.w, "\nRMS= %v\n", res.RMS)
	fmt.Fprintf(r.w, "mtx = %v\n", mat.Formatted(res.CameraMatrix, mat.Prefix("      "), mat.Squeeze()))
	fmt.Fprintf(r.w, "dist = %v\n", mat.Formatted(res.DistCoeffs, mat.Squeeze()))
}

func (r *consoleReporter) Saved(path string) {
	fmt.Fprintf(r.w, "💾 camera parameters are saved ('%s')\n", path)
}

func (r *consoleReporter) finish() {
	if !r.bar.IsFinished() {
		_ = r.bar.Finish()
	}
}
