package types

import (
	"image"

	"gonum.org/v1/gonum/mat"
)

// Point2 is a 2-D image coordinate in pixels.
type Point2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Point3 is a 3-D coordinate on the calibration target (Z is always 0 for a flat board).
type Point3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Sample is one accepted observation: the board's reference points paired with
// the refined corners detected in a single frame.
type Sample struct {
	ObjectPoints []Point3
	ImagePoints  []Point2
}

// CalibrationResult is produced once per session by the calibration solve.
type CalibrationResult struct {
	RMS          float64
	ImageSize    image.Point
	CameraMatrix *mat.Dense // 3x3
	DistCoeffs   *mat.Dense // 1xK
	Rvecs        *mat.Dense // one rotation vector per row
	Tvecs        *mat.Dense // one translation vector per row
}

// Views returns the number of per-sample pose vectors in the result.
func (r *CalibrationResult) Views() int {
	if r == nil || r.Rvecs == nil {
		return 0
	}
	rows, _ := r.Rvecs.Dims()
	return rows
}
