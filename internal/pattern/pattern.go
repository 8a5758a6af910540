package pattern

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/andresmejia3/camcal/internal/types"
)

// GridSize is the number of inner corners of the chessboard, horizontally and vertically.
type GridSize struct {
	Cols int
	Rows int
}

// DefaultGrid matches the 10x7 boards the tool was built around.
var DefaultGrid = GridSize{Cols: 10, Rows: 7}

func (g GridSize) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// Point returns the grid as an image.Point, the shape OpenCV expects for patternSize.
func (g GridSize) Point() image.Point {
	return image.Pt(g.Cols, g.Rows)
}

// Corners is the number of inner corners on the board.
func (g GridSize) Corners() int {
	return g.Cols * g.Rows
}

// ParseGridSize accepts "10x7", "10,7" and "(10,7)".
func ParseGridSize(s string) (GridSize, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")

	parts := strings.FieldsFunc(strings.ToLower(trimmed), func(r rune) bool {
		return r == 'x' || r == ','
	})
	if len(parts) != 2 {
		return GridSize{}, fmt.Errorf("invalid grid size %q: expected COLSxROWS", s)
	}

	cols, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return GridSize{}, fmt.Errorf("invalid grid columns %q: %w", parts[0], err)
	}
	rows, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return GridSize{}, fmt.Errorf("invalid grid rows %q: %w", parts[1], err)
	}

	// OpenCV rejects boards with fewer than 2 inner corners per side
	if cols < 2 || rows < 2 {
		return GridSize{}, fmt.Errorf("invalid grid size %dx%d: both dimensions must be >= 2", cols, rows)
	}
	return GridSize{Cols: cols, Rows: rows}, nil
}

// ReferencePoints generates the idealized flat board (z = 0) for the grid.
// X varies fastest: (0,0,0), (1,0,0), ... (Cols-1,Rows-1,0), scaled by squareSize.
// Every call returns a new slice, so callers may keep it as a per-sample copy.
func ReferencePoints(grid GridSize, squareSize float64) []types.Point3 {
	if squareSize <= 0 {
		squareSize = 1
	}
	pts := make([]types.Point3, 0, grid.Corners())
	for y := 0; y < grid.Rows; y++ {
		for x := 0; x < grid.Cols; x++ {
			pts = append(pts, types.Point3{
				X: float32(float64(x) * squareSize),
				Y: float32(float64(y) * squareSize),
			})
		}
	}
	return pts
}
