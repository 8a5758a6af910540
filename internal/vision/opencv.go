package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/camcal/internal/pattern"
	"github.com/andresmejia3/camcal/internal/session"
	"github.com/andresmejia3/camcal/internal/types"
	"gocv.io/x/gocv"
)

// chessboardFlags are OpenCV's defaults for findChessboardCorners.
const chessboardFlags = gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage

// OpenCV implements session.Vision with gocv.
type OpenCV struct{}

var _ session.Vision = OpenCV{}

var errEmptyFrame = errors.New("empty frame")

func asFrame(f session.Frame) (*Frame, error) {
	frame, ok := f.(*Frame)
	if !ok {
		return nil, fmt.Errorf("unsupported frame type %T", f)
	}
	if frame.Mat.Empty() {
		return nil, errEmptyFrame
	}
	return frame, nil
}

// Grayscale returns a single-channel copy of the frame.
func (OpenCV) Grayscale(f session.Frame) (session.Frame, error) {
	src, err := asFrame(f)
	if err != nil {
		return nil, err
	}

	gray := gocv.NewMat()
	switch src.Mat.Channels() {
	case 1:
		err = src.Mat.CopyTo(&gray)
	case 4:
		err = gocv.CvtColor(src.Mat, &gray, gocv.ColorBGRAToGray)
	default:
		err = gocv.CvtColor(src.Mat, &gray, gocv.ColorBGRToGray)
	}
	if err != nil {
		gray.Close()
		return nil, fmt.Errorf("color conversion failed: %w", err)
	}
	return &Frame{Mat: gray}, nil
}

// FindCorners locates the inner chessboard corners, ordered row by row.
func (OpenCV) FindCorners(gray session.Frame, grid pattern.GridSize) ([]types.Point2, bool) {
	src, err := asFrame(gray)
	if err != nil {
		return nil, false
	}

	corners := gocv.NewMat()
	defer corners.Close()

	if !gocv.FindChessboardCorners(src.Mat, grid.Point(), &corners, chessboardFlags) {
		return nil, false
	}
	pts, err := cornersToPoints(corners)
	if err != nil || len(pts) != grid.Corners() {
		return nil, false
	}
	return pts, true
}

// RefineCorners runs cornerSubPix with the zero zone disabled.
func (OpenCV) RefineCorners(gray session.Frame, corners []types.Point2, window image.Point, crit session.Criteria) ([]types.Point2, error) {
	src, err := asFrame(gray)
	if err != nil {
		return nil, err
	}

	m, err := pointsToCorners(corners)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, crit.MaxIter, crit.Epsilon)
	if err := gocv.CornerSubPix(src.Mat, &m, window, image.Pt(-1, -1), criteria); err != nil {
		return nil, fmt.Errorf("corner refinement failed: %w", err)
	}

	return cornersToPoints(m)
}

// DrawCorners overlays the corners on a clone of f.
func (OpenCV) DrawCorners(f session.Frame, grid pattern.GridSize, corners []types.Point2, found bool) (session.Frame, error) {
	src, err := asFrame(f)
	if err != nil {
		return nil, err
	}

	m, err := pointsToCorners(corners)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	annotated := src.Mat.Clone()
	if err := gocv.DrawChessboardCorners(&annotated, grid.Point(), m, found); err != nil {
		annotated.Close()
		return nil, fmt.Errorf("drawing corners failed: %w", err)
	}
	return &Frame{Mat: annotated}, nil
}

// Calibrate solves for the camera intrinsics over all samples.
// Inputs OpenCV would reject with an assertion are returned as ErrCalibrationSolve instead.
func (OpenCV) Calibrate(samples []types.Sample, imageSize image.Point) (*types.CalibrationResult, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples captured", session.ErrCalibrationSolve)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, fmt.Errorf("%w: invalid image size %v", session.ErrCalibrationSolve, imageSize)
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()

	for i, s := range samples {
		if len(s.ObjectPoints) == 0 || len(s.ObjectPoints) != len(s.ImagePoints) {
			return nil, fmt.Errorf("%w: sample %d has %d reference points and %d corners",
				session.ErrCalibrationSolve, i, len(s.ObjectPoints), len(s.ImagePoints))
		}

		obj := gocv.NewPoint3fVectorFromPoints(toPoint3f(s.ObjectPoints))
		objectPoints.Append(obj)
		obj.Close()

		img := gocv.NewPoint2fVectorFromPoints(toPoint2f(s.ImagePoints))
		imagePoints.Append(img)
		img.Close()
	}

	cameraMatrix := gocv.NewMat()
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	gocv.ClearLastException()
	rms := gocv.CalibrateCamera(objectPoints, imagePoints, imageSize,
		&cameraMatrix, &distCoeffs, &rvecs, &tvecs, gocv.CalibFlag(0))
	// The binding reports a thrown cv::Exception as RMS 0 plus the last exception
	if err := gocv.LastExceptionError(); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrCalibrationSolve, err)
	}
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, fmt.Errorf("%w: solver returned non-finite RMS %v", session.ErrCalibrationSolve, rms)
	}

	res := &types.CalibrationResult{RMS: rms, ImageSize: imageSize}
	var err error
	if res.CameraMatrix, err = matToDense(cameraMatrix, 3, 3); err != nil {
		return nil, fmt.Errorf("%w: camera matrix: %w", session.ErrCalibrationSolve, err)
	}
	if res.DistCoeffs, err = matToDense(distCoeffs, 1, distCoeffs.Total()*distCoeffs.Channels()); err != nil {
		return nil, fmt.Errorf("%w: distortion coefficients: %w", session.ErrCalibrationSolve, err)
	}
	if res.Rvecs, err = matToDense(rvecs, len(samples), 3); err != nil {
		return nil, fmt.Errorf("%w: rotation vectors: %w", session.ErrCalibrationSolve, err)
	}
	if res.Tvecs, err = matToDense(tvecs, len(samples), 3); err != nil {
		return nil, fmt.Errorf("%w: translation vectors: %w", session.ErrCalibrationSolve, err)
	}
	return res, nil
}
