package vision

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/andresmejia3/camcal/internal/pattern"
	"github.com/andresmejia3/camcal/internal/session"
	"github.com/andresmejia3/camcal/internal/types"
	"gocv.io/x/gocv"
)

const squarePx = 40

// syntheticBoard renders a chessboard with the given inner-corner grid on a white margin.
func syntheticBoard(grid pattern.GridSize) *Frame {
	w := (grid.Cols+1)*squarePx + 2*squarePx
	h := (grid.Rows+1)*squarePx + 2*squarePx
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), h, w, gocv.MatTypeCV8UC3)

	black := color.RGBA{0, 0, 0, 0}
	for y := 0; y <= grid.Rows; y++ {
		for x := 0; x <= grid.Cols; x++ {
			if (x+y)%2 != 0 {
				continue
			}
			x0 := squarePx + x*squarePx
			y0 := squarePx + y*squarePx
			gocv.Rectangle(&img, image.Rect(x0, y0, x0+squarePx, y0+squarePx), black, -1)
		}
	}
	return &Frame{Mat: img}
}

func TestGrayscale(t *testing.T) {
	frame := syntheticBoard(pattern.GridSize{Cols: 4, Rows: 3})
	defer frame.Close()

	gray, err := OpenCV{}.Grayscale(frame)
	if err != nil {
		t.Fatalf("Grayscale failed: %v", err)
	}
	defer gray.Close()

	if ch := gray.(*Frame).Mat.Channels(); ch != 1 {
		t.Errorf("Expected 1 channel, got %d", ch)
	}
	if gray.Size() != frame.Size() {
		t.Errorf("Size changed: %v -> %v", frame.Size(), gray.Size())
	}
}

func TestFindAndRefineCorners(t *testing.T) {
	grid := pattern.GridSize{Cols: 4, Rows: 3}
	frame := syntheticBoard(grid)
	defer frame.Close()

	cv := OpenCV{}
	gray, err := cv.Grayscale(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer gray.Close()

	corners, found := cv.FindCorners(gray, grid)
	if !found {
		t.Fatal("Expected the synthetic board to be detected")
	}
	if len(corners) != grid.Corners() {
		t.Fatalf("Expected %d corners, got %d", grid.Corners(), len(corners))
	}

	cfg := session.DefaultConfig()
	refined, err := cv.RefineCorners(gray, corners, cfg.Window, cfg.Criteria)
	if err != nil {
		t.Fatalf("RefineCorners failed: %v", err)
	}
	if len(refined) != len(corners) {
		t.Fatalf("Refinement changed corner count: %d -> %d", len(corners), len(refined))
	}

	// Every refined corner must sit on a square intersection of the rendered board
	for i, c := range refined {
		gx := math.Round(float64(c.X)/squarePx) * squarePx
		gy := math.Round(float64(c.Y)/squarePx) * squarePx
		if math.Abs(float64(c.X)-gx) > 1.5 || math.Abs(float64(c.Y)-gy) > 1.5 {
			t.Errorf("Corner %d at (%.2f,%.2f) is not on the grid", i, c.X, c.Y)
		}
	}
}

func TestFindCornersWrongGrid(t *testing.T) {
	frame := syntheticBoard(pattern.GridSize{Cols: 4, Rows: 3})
	defer frame.Close()

	cv := OpenCV{}
	gray, _ := cv.Grayscale(frame)
	defer gray.Close()

	if _, found := cv.FindCorners(gray, pattern.GridSize{Cols: 9, Rows: 6}); found {
		t.Error("Detected a 9x6 board on a 4x3 image")
	}
}

func TestDrawCornersLeavesSourceUntouched(t *testing.T) {
	grid := pattern.GridSize{Cols: 4, Rows: 3}
	frame := syntheticBoard(grid)
	defer frame.Close()
	before := frame.Mat.Clone()
	defer before.Close()

	cv := OpenCV{}
	gray, _ := cv.Grayscale(frame)
	defer gray.Close()
	corners, found := cv.FindCorners(gray, grid)
	if !found {
		t.Fatal("Expected the synthetic board to be detected")
	}

	annotated, err := cv.DrawCorners(frame, grid, corners, true)
	if err != nil {
		t.Fatalf("DrawCorners failed: %v", err)
	}
	defer annotated.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(frame.Mat, before, &diff)
	if gocv.CountNonZero(diff.Reshape(1, 0)) != 0 {
		t.Error("DrawCorners modified the source frame")
	}

	gocv.AbsDiff(annotated.(*Frame).Mat, before, &diff)
	if gocv.CountNonZero(diff.Reshape(1, 0)) == 0 {
		t.Error("Annotated frame has no overlay")
	}
}

func TestCornerConversion(t *testing.T) {
	pts := []types.Point2{{X: 1.5, Y: 2.25}, {X: 100, Y: 0.125}}
	m, err := pointsToCorners(pts)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Rows() != 2 || m.Channels() != 2 {
		t.Fatalf("Unexpected corner matrix shape %dx%d (%d channels)", m.Rows(), m.Cols(), m.Channels())
	}
	back, err := cornersToPoints(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := range pts {
		if back[i] != pts[i] {
			t.Errorf("Point %d: got %+v, want %+v", i, back[i], pts[i])
		}
	}

	if _, err := pointsToCorners(nil); err == nil {
		t.Error("Expected error for empty corner list")
	}
}

func TestCalibrateRejectsBadInput(t *testing.T) {
	grid := pattern.GridSize{Cols: 4, Rows: 3}
	ref := pattern.ReferencePoints(grid, 1)

	tests := []struct {
		name    string
		samples []types.Sample
		size    image.Point
	}{
		{"No samples", nil, image.Pt(640, 480)},
		{"Mismatched points", []types.Sample{{ObjectPoints: ref, ImagePoints: make([]types.Point2, 3)}}, image.Pt(640, 480)},
		{"Empty sample", []types.Sample{{}}, image.Pt(640, 480)},
		{"Invalid size", []types.Sample{{ObjectPoints: ref, ImagePoints: make([]types.Point2, len(ref))}}, image.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenCV{}.Calibrate(tt.samples, tt.size)
			if !errors.Is(err, session.ErrCalibrationSolve) {
				t.Errorf("Expected ErrCalibrationSolve, got %v", err)
			}
		})
	}
}

func TestEmptyFrameIsRejected(t *testing.T) {
	grid := pattern.GridSize{Cols: 4, Rows: 3}
	empty := &Frame{Mat: gocv.NewMat()}
	defer empty.Close()

	cv := OpenCV{}
	if _, err := cv.Grayscale(empty); err == nil {
		t.Error("Grayscale accepted an empty frame")
	}
	if _, found := cv.FindCorners(empty, grid); found {
		t.Error("FindCorners reported a board on an empty frame")
	}

	corners := make([]types.Point2, grid.Corners())
	for i := range corners {
		corners[i] = types.Point2{X: float32(10 * i), Y: 10}
	}
	cfg := session.DefaultConfig()
	if refined, err := cv.RefineCorners(empty, corners, cfg.Window, cfg.Criteria); err == nil {
		t.Errorf("RefineCorners on an empty image returned %d corners and no error", len(refined))
	}
	if _, err := cv.DrawCorners(empty, grid, corners, true); err == nil {
		t.Error("DrawCorners accepted an empty frame")
	}
}

func TestCalibrateSurfacesSolverError(t *testing.T) {
	grid := pattern.GridSize{Cols: 4, Rows: 3}

	// A non-planar rig without an intrinsic guess makes OpenCV throw
	obj := pattern.ReferencePoints(grid, 1)
	img := make([]types.Point2, len(obj))
	for i := range obj {
		obj[i].Z = float32(i % 3)
		img[i] = types.Point2{X: 100 + 40*obj[i].X, Y: 100 + 40*obj[i].Y}
	}
	samples := []types.Sample{
		{ObjectPoints: obj, ImagePoints: img},
		{ObjectPoints: obj, ImagePoints: img},
	}

	res, err := OpenCV{}.Calibrate(samples, image.Pt(640, 480))
	if !errors.Is(err, session.ErrCalibrationSolve) {
		t.Fatalf("Expected ErrCalibrationSolve, got %v (result %+v)", err, res)
	}
	if strings.Contains(err.Error(), "DataPtrFloat64") {
		t.Errorf("Solver failure was masked by a matrix conversion error: %v", err)
	}
}

// warpedView renders the board under a perspective transform onto a 640x480 canvas.
func warpedView(t *testing.T, board *Frame, quad []image.Point) *Frame {
	t.Helper()
	w, h := board.Mat.Cols(), board.Mat.Rows()
	src := gocv.NewPointVectorFromPoints([]image.Point{{0, 0}, {w, 0}, {w, h}, {0, h}})
	defer src.Close()
	dst := gocv.NewPointVectorFromPoints(quad)
	defer dst.Close()

	m := gocv.GetPerspectiveTransform(src, dst)
	defer m.Close()

	out := gocv.NewMat()
	if err := gocv.WarpPerspective(board.Mat, &out, m, image.Pt(640, 480)); err != nil {
		t.Fatalf("WarpPerspective failed: %v", err)
	}
	return &Frame{Mat: out}
}

func TestCalibrateSyntheticViews(t *testing.T) {
	grid := pattern.GridSize{Cols: 6, Rows: 5}
	board := syntheticBoard(grid)
	defer board.Close()

	quads := [][]image.Point{
		{{100, 60}, {520, 80}, {540, 420}, {80, 400}},
		{{60, 100}, {500, 40}, {560, 440}, {120, 380}},
		{{140, 80}, {560, 120}, {500, 420}, {100, 380}},
		{{80, 40}, {480, 60}, {520, 380}, {120, 440}},
	}

	cv := OpenCV{}
	cfg := session.DefaultConfig()
	var samples []types.Sample
	for i, q := range quads {
		view := warpedView(t, board, q)
		gray, err := cv.Grayscale(view)
		if err != nil {
			t.Fatalf("View %d: Grayscale failed: %v", i, err)
		}
		corners, found := cv.FindCorners(gray, grid)
		if !found {
			t.Fatalf("View %d: board not detected", i)
		}
		refined, err := cv.RefineCorners(gray, corners, cfg.Window, cfg.Criteria)
		if err != nil {
			t.Fatalf("View %d: RefineCorners failed: %v", i, err)
		}
		samples = append(samples, types.Sample{
			ObjectPoints: pattern.ReferencePoints(grid, 1),
			ImagePoints:  refined,
		})
		gray.Close()
		view.Close()
	}

	res, err := cv.Calibrate(samples, image.Pt(640, 480))
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if !(res.RMS > 0) || math.IsInf(res.RMS, 0) {
		t.Errorf("Expected a positive finite RMS, got %v", res.RMS)
	}
	if r, c := res.CameraMatrix.Dims(); r != 3 || c != 3 {
		t.Errorf("Camera matrix is %dx%d, want 3x3", r, c)
	}
	if r, c := res.DistCoeffs.Dims(); r != 1 || c < 4 {
		t.Errorf("Distortion is %dx%d, want 1xK with K >= 4", r, c)
	}
	for name, m := range map[string]interface{ Dims() (int, int) }{"rvecs": res.Rvecs, "tvecs": res.Tvecs} {
		if r, c := m.Dims(); r != len(samples) || c != 3 {
			t.Errorf("%s is %dx%d, want %dx3", name, r, c, len(samples))
		}
	}
	if res.Views() != len(samples) {
		t.Errorf("Views() = %d, want %d", res.Views(), len(samples))
	}
	if res.CameraMatrix.At(2, 2) != 1 {
		t.Errorf("Camera matrix is not normalised: %v", res.CameraMatrix.At(2, 2))
	}
}

func TestOpenCameraMissingDevice(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping device probe in short mode")
	}
	_, err := OpenCamera(CameraOptions{Device: 99})
	if !errors.Is(err, ErrDeviceOpen) {
		t.Errorf("Expected ErrDeviceOpen, got %v", err)
	}
}
