package vision

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"

	"github.com/andresmejia3/camcal/internal/types"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// cornersToPoints reads an Nx1 CV_32FC2 corner Mat as produced by FindChessboardCorners.
func cornersToPoints(m gocv.Mat) ([]types.Point2, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read corners: %w", err)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("corner buffer has odd length %d", len(data))
	}
	pts := make([]types.Point2, len(data)/2)
	for i := range pts {
		pts[i] = types.Point2{X: data[2*i], Y: data[2*i+1]}
	}
	return pts, nil
}

// pointsToCorners builds an owned Nx1 CV_32FC2 Mat from points.
func pointsToCorners(pts []types.Point2) (gocv.Mat, error) {
	if len(pts) == 0 {
		return gocv.NewMat(), fmt.Errorf("no corners to convert")
	}
	buf := make([]byte, len(pts)*8)
	for i, p := range pts {
		binary.NativeEndian.PutUint32(buf[i*8:], math.Float32bits(p.X))
		binary.NativeEndian.PutUint32(buf[i*8+4:], math.Float32bits(p.Y))
	}

	view, err := gocv.NewMatFromBytes(len(pts), 1, gocv.MatTypeCV32FC2, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build corner matrix: %w", err)
	}
	defer view.Close()

	// The view borrows buf, so detach it before buf goes out of scope
	owned := view.Clone()
	runtime.KeepAlive(buf)
	return owned, nil
}

func toPoint3f(pts []types.Point3) []gocv.Point3f {
	out := make([]gocv.Point3f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point3f{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

func toPoint2f(pts []types.Point2) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: p.X, Y: p.Y}
	}
	return out
}

// matToDense copies a CV_64F Mat (any channel count) into a rows x cols gonum matrix.
func matToDense(m gocv.Mat, rows, cols int) (*mat.Dense, error) {
	data, err := m.DataPtrFloat64()
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	if rows*cols == 0 {
		return nil, fmt.Errorf("empty %dx%d matrix", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("expected %dx%d values, got %d", rows, cols, len(data))
	}
	out := make([]float64, len(data))
	copy(out, data)
	return mat.NewDense(rows, cols, out), nil
}
