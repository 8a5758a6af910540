// Package session runs the interactive capture-and-calibrate loop: read a frame,
// look for the chessboard, show the preview and react to the operator's keys.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/camcal/internal/pattern"
	"github.com/andresmejia3/camcal/internal/types"
)

// ErrCalibrationSolve wraps any failure of the calibration solve (too few or degenerate samples).
var ErrCalibrationSolve = errors.New("calibration solve failed")

// Keys recognised while the preview window has focus.
const (
	KeyNone      = -1
	KeyEscape    = 27
	KeySpace     = ' '
	KeyCalibrate = 'c'
)

// Frame is a single camera image owned by whoever produced it.
type Frame interface {
	Size() image.Point
	Close() error
}

// Camera yields frames until the stream ends or the device fails.
type Camera interface {
	Read() (Frame, bool)
	Close() error
}

// Display is the live preview surface. WaitKey returns KeyNone when nothing was pressed.
type Display interface {
	Show(f Frame) error
	WaitKey(delayMs int) int
	Close() error
}

// Criteria stops sub-pixel refinement after MaxIter iterations or once corners move less than Epsilon.
type Criteria struct {
	MaxIter int
	Epsilon float64
}

// Vision is the computer-vision library boundary.
type Vision interface {
	Grayscale(f Frame) (Frame, error)
	FindCorners(gray Frame, grid pattern.GridSize) ([]types.Point2, bool)
	RefineCorners(gray Frame, corners []types.Point2, window image.Point, crit Criteria) ([]types.Point2, error)
	// DrawCorners returns an annotated copy; the input frame is left untouched.
	DrawCorners(f Frame, grid pattern.GridSize, corners []types.Point2, found bool) (Frame, error)
	Calibrate(samples []types.Sample, imageSize image.Point) (*types.CalibrationResult, error)
}

// ResultWriter persists a finished calibration and returns the path it wrote.
type ResultWriter interface {
	Write(res *types.CalibrationResult) (string, error)
}

// Reporter receives operator-facing progress.
type Reporter interface {
	Captured(count int)
	Calibrating(samples int)
	Calibrated(res *types.CalibrationResult)
	Saved(path string)
}

// Config is fixed for the whole session.
type Config struct {
	Grid       pattern.GridSize
	SquareSize float64
	// Window is the half side length of the refinement search window, as OpenCV's cornerSubPix takes it.
	Window   image.Point
	Criteria Criteria
	// KeyDelayMs is how long each iteration waits for a keypress.
	KeyDelayMs int
}

// DefaultConfig mirrors the usual OpenCV chessboard recipe.
func DefaultConfig() Config {
	return Config{
		Grid:       pattern.DefaultGrid,
		SquareSize: 1,
		Window:     image.Pt(11, 11),
		Criteria:   Criteria{MaxIter: 30, Epsilon: 0.001},
		KeyDelayMs: 1,
	}
}

// Outcome is how a session terminated.
type Outcome int

const (
	outcomeContinue Outcome = iota
	// OutcomeEndOfStream: the camera stopped delivering frames.
	OutcomeEndOfStream
	// OutcomeAborted: the operator pressed Escape.
	OutcomeAborted
	// OutcomeCancelled: the context was cancelled (Ctrl+C).
	OutcomeCancelled
	// OutcomeSaved: calibration was computed and written.
	OutcomeSaved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEndOfStream:
		return "end-of-stream"
	case OutcomeAborted:
		return "aborted"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSaved:
		return "saved"
	default:
		return "running"
	}
}

// State is the mutable per-session data.
type State struct {
	Samples   []types.Sample
	FrameSize image.Point
	Found     bool
	Corners   []types.Point2
}

// Summary describes a finished session.
type Summary struct {
	Outcome     Outcome
	Samples     int
	OutputPath  string
	Calibration *types.CalibrationResult
}

// Session owns the camera and the display for its lifetime.
type Session struct {
	cfg      Config
	camera   Camera
	display  Display
	vision   Vision
	writer   ResultWriter
	reporter Reporter

	state      State
	result     *types.CalibrationResult
	outputPath string
}

// New wires a session. A nil reporter discards progress.
func New(cfg Config, camera Camera, display Display, vision Vision, writer ResultWriter, reporter Reporter) *Session {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Session{
		cfg:      cfg,
		camera:   camera,
		display:  display,
		vision:   vision,
		writer:   writer,
		reporter: reporter,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Run drives the loop until end-of-stream, Escape, cancellation or a successful save.
// The display and camera are released on every path.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	defer s.camera.Close()
	defer s.display.Close()

	for {
		select {
		case <-ctx.Done():
			return s.summary(OutcomeCancelled), nil
		default:
		}

		frame, ok := s.camera.Read()
		if !ok {
			return s.summary(OutcomeEndOfStream), nil
		}

		outcome, err := s.step(frame)
		frame.Close()
		if err != nil {
			return s.summary(outcomeContinue), err
		}
		if outcome != outcomeContinue {
			return s.summary(outcome), nil
		}
	}
}

func (s *Session) step(frame Frame) (Outcome, error) {
	s.state.FrameSize = frame.Size()
	s.state.Found = false
	s.state.Corners = nil

	gray, err := s.vision.Grayscale(frame)
	if err != nil {
		return outcomeContinue, fmt.Errorf("grayscale conversion failed: %w", err)
	}
	defer gray.Close()

	shown := frame
	if corners, found := s.vision.FindCorners(gray, s.cfg.Grid); found {
		// A refinement failure just leaves the frame unannotated
		refined, err := s.vision.RefineCorners(gray, corners, s.cfg.Window, s.cfg.Criteria)
		if err == nil {
			s.state.Found = true
			s.state.Corners = refined

			if annotated, err := s.vision.DrawCorners(frame, s.cfg.Grid, refined, true); err == nil {
				defer annotated.Close()
				shown = annotated
			}
		}
	}

	if err := s.display.Show(shown); err != nil {
		return outcomeContinue, fmt.Errorf("preview failed: %w", err)
	}
	return s.handleKey(s.display.WaitKey(s.cfg.KeyDelayMs))
}

func (s *Session) handleKey(key int) (Outcome, error) {
	switch key {
	case KeyEscape:
		return OutcomeAborted, nil
	case KeySpace:
		if s.state.Found {
			s.accept()
		}
		return outcomeContinue, nil
	case KeyCalibrate:
		if err := s.finalize(); err != nil {
			return outcomeContinue, err
		}
		return OutcomeSaved, nil
	default:
		return outcomeContinue, nil
	}
}

func (s *Session) accept() {
	corners := make([]types.Point2, len(s.state.Corners))
	copy(corners, s.state.Corners)

	s.state.Samples = append(s.state.Samples, types.Sample{
		ObjectPoints: pattern.ReferencePoints(s.cfg.Grid, s.cfg.SquareSize),
		ImagePoints:  corners,
	})
	s.reporter.Captured(len(s.state.Samples))
}

func (s *Session) finalize() error {
	s.reporter.Calibrating(len(s.state.Samples))

	res, err := s.vision.Calibrate(s.state.Samples, s.state.FrameSize)
	if err != nil {
		if errors.Is(err, ErrCalibrationSolve) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCalibrationSolve, err)
	}
	s.reporter.Calibrated(res)

	path, err := s.writer.Write(res)
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	s.reporter.Saved(path)

	s.result = res
	s.outputPath = path
	return nil
}

func (s *Session) summary(o Outcome) Summary {
	return Summary{
		Outcome:     o,
		Samples:     len(s.state.Samples),
		OutputPath:  s.outputPath,
		Calibration: s.result,
	}
}

type nopReporter struct{}

func (nopReporter) Captured(int) {}
func (nopReporter) Calibrating(int) {}
func (nopReporter) Calibrated(*types.CalibrationResult) {}
func (nopReporter) Saved(string) {}
