package calibio

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/camcal/internal/types"
)

// document is the JSON schema written with --format json.
type document struct {
	RMS          float64     `json:"rms"`
	ImageWidth   int         `json:"image_width"`
	ImageHeight  int         `json:"image_height"`
	Views        int         `json:"views"`
	CameraMatrix [][]float64 `json:"mtx"`
	DistCoeffs   [][]float64 `json:"dist"`
	Rvecs        [][]float64 `json:"rvecs"`
	Tvecs        [][]float64 `json:"tvecs"`
}

func writeJSON(path string, res *types.CalibrationResult) error {
	doc := document{
		RMS:          res.RMS,
		ImageWidth:   res.ImageSize.X,
		ImageHeight:  res.ImageSize.Y,
		Views:        res.Views(),
		CameraMatrix: rows(res.CameraMatrix),
		DistCoeffs:   rows(res.DistCoeffs),
		Rvecs:        rows(res.Rvecs),
		Tvecs:        rows(res.Tvecs),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string) (*types.CalibrationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	res := &types.CalibrationResult{
		RMS:       doc.RMS,
		ImageSize: image.Pt(doc.ImageWidth, doc.ImageHeight),
	}
	if res.CameraMatrix, err = fromRows(KeyMatrix, doc.CameraMatrix); err != nil {
		return nil, err
	}
	if res.DistCoeffs, err = fromRows(KeyDist, doc.DistCoeffs); err != nil {
		return nil, err
	}
	if res.Rvecs, err = fromRows(KeyRvecs, doc.Rvecs); err != nil {
		return nil, err
	}
	if res.Tvecs, err = fromRows(KeyTvecs, doc.Tvecs); err != nil {
		return nil, err
	}
	return res, nil
}
