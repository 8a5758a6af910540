package calibio

import (
	"fmt"
	"strings"

	"github.com/andresmejia3/camcal/internal/types"
	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

// writeNPZ stores the four arrays the same way np.savez(base, mtx=..., dist=..., rvecs=..., tvecs=...) would.
func writeNPZ(path string, res *types.CalibrationResult) error {
	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	arrays := []struct {
		key string
		m   *mat.Dense
	}{
		{KeyMatrix, res.CameraMatrix},
		{KeyDist, res.DistCoeffs},
		{KeyRvecs, res.Rvecs},
		{KeyTvecs, res.Tvecs},
	}
	for _, a := range arrays {
		if err := w.Write(a.key, a.m); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", a.key, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

func readNPZ(path string) (*types.CalibrationResult, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	keys := make(map[string]string)
	for _, k := range r.Keys() {
		keys[strings.TrimSuffix(k, ".npy")] = k
	}

	read := func(key string) (*mat.Dense, error) {
		name, ok := keys[key]
		if !ok {
			return nil, fmt.Errorf("%s: missing array %q", path, key)
		}
		var m mat.Dense
		if err := r.Read(name, &m); err != nil {
			return nil, fmt.Errorf("%s: failed to read %q: %w", path, key, err)
		}
		return &m, nil
	}

	res := &types.CalibrationResult{}
	if res.CameraMatrix, err = read(KeyMatrix); err != nil {
		return nil, err
	}
	if res.DistCoeffs, err = read(KeyDist); err != nil {
		return nil, err
	}
	if res.Rvecs, err = read(KeyRvecs); err != nil {
		return nil, err
	}
	if res.Tvecs, err = read(KeyTvecs); err != nil {
		return nil, err
	}
	return res, nil
}
