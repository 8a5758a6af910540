// Package calibio persists calibration results as numpy .npz bundles or JSON documents.
package calibio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/camcal/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Format selects the on-disk representation.
type Format string

const (
	FormatNPZ  Format = "npz"
	FormatJSON Format = "json"
)

// Array names inside the bundle, matching what numpy users load with np.load.
const (
	KeyMatrix = "mtx"
	KeyDist   = "dist"
	KeyRvecs  = "rvecs"
	KeyTvecs  = "tvecs"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatNPZ:
		return FormatNPZ, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use npz or json)", s)
	}
}

// OutputPath appends the format extension unless base already carries it, like np.savez.
func OutputPath(base string, format Format) string {
	ext := "." + string(format)
	if strings.EqualFold(filepath.Ext(base), ext) {
		return base
	}
	return base + ext
}

// Writer saves results under a fixed base name. It implements session.ResultWriter.
type Writer struct {
	Base   string
	Format Format
}

// Write persists res and returns the file path.
func (w Writer) Write(res *types.CalibrationResult) (string, error) {
	if err := validate(res); err != nil {
		return "", err
	}

	path := OutputPath(w.Base, w.Format)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	switch w.Format {
	case FormatJSON:
		err = writeJSON(path, res)
	case FormatNPZ, "":
		err = writeNPZ(path, res)
	default:
		err = fmt.Errorf("unsupported output format %q", w.Format)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a result saved by Writer, picking the decoder from the file extension.
func Load(path string) (*types.CalibrationResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return readJSON(path)
	case ".npz":
		return readNPZ(path)
	default:
		return nil, fmt.Errorf("unknown calibration file type %q", path)
	}
}

func validate(res *types.CalibrationResult) error {
	if res == nil || res.CameraMatrix == nil || res.DistCoeffs == nil || res.Rvecs == nil || res.Tvecs == nil {
		return fmt.Errorf("incomplete calibration result")
	}
	if r, c := res.CameraMatrix.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	rr, rc := res.Rvecs.Dims()
	tr, tc := res.Tvecs.Dims()
	if rc != 3 || tc != 3 || rr != tr {
		return fmt.Errorf("pose vectors disagree: rvecs %dx%d, tvecs %dx%d", rr, rc, tr, tc)
	}
	return nil
}

// rows flattens a gonum matrix into row slices for serialization.
func rows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, m)
	}
	return out
}

// fromRows is the inverse of rows; every row must have the same length.
func fromRows(name string, data [][]float64) (*mat.Dense, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	cols := len(data[0])
	flat := make([]float64, 0, len(data)*cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("%s row %d has %d values, want %d", name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(data), cols, flat), nil
}
