package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding calibration history.
type Store struct {
	conn *pgx.Conn
}

// Calibration is one recorded calibration run.
type Calibration struct {
	ID          uuid.UUID
	Device      int
	GridCols    int
	GridRows    int
	ImageWidth  int
	ImageHeight int
	SampleCount int
	RMS         float64
	Matrix      []float64 // row-major 3x3
	Dist        []float64
	OutputPath  string
	CreatedAt   time.Time
}

// ErrNotFound is returned when no calibration has the requested ID.
var ErrNotFound = errors.New("calibration not found")

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the history table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS calibrations (
			id UUID PRIMARY KEY,
			device INT NOT NULL,
			grid_cols INT NOT NULL,
			grid_rows INT NOT NULL,
			image_width INT NOT NULL,
			image_height INT NOT NULL,
			sample_count INT NOT NULL,
			rms DOUBLE PRECISION NOT NULL,
			camera_matrix DOUBLE PRECISION[] NOT NULL,
			dist_coeffs DOUBLE PRECISION[] NOT NULL,
			output_path TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS calibrations_device_idx ON calibrations (device, created_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// InsertCalibration records a finished run. A zero ID is replaced with a fresh one, which is returned.
func (s *Store) InsertCalibration(ctx context.Context, c Calibration) (uuid.UUID, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if len(c.Matrix) != 9 {
		return uuid.Nil, fmt.Errorf("camera matrix must have 9 values, got %d", len(c.Matrix))
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO calibrations (id, device, grid_cols, grid_rows, image_width, image_height,
			sample_count, rms, camera_matrix, dist_coeffs, output_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`, c.ID, c.Device, c.GridCols, c.GridRows, c.ImageWidth, c.ImageHeight,
		c.SampleCount, c.RMS, c.Matrix, c.Dist, c.OutputPath)
	if err != nil {
		return uuid.Nil, err
	}
	return c.ID, nil
}

const selectColumns = `id, device, grid_cols, grid_rows, image_width, image_height,
	sample_count, rms, camera_matrix, dist_coeffs, output_path, created_at`

func scanCalibration(row pgx.Row) (Calibration, error) {
	var c Calibration
	err := row.Scan(&c.ID, &c.Device, &c.GridCols, &c.GridRows, &c.ImageWidth, &c.ImageHeight,
		&c.SampleCount, &c.RMS, &c.Matrix, &c.Dist, &c.OutputPath, &c.CreatedAt)
	return c, err
}

// ListCalibrations returns recorded runs, newest first. A negative device lists every device.
func (s *Store) ListCalibrations(ctx context.Context, device int) ([]Calibration, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+selectColumns+`
		FROM calibrations
		WHERE $1 < 0 OR device = $1
		ORDER BY created_at DESC
	`, device)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Calibration
	for rows.Next() {
		c, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCalibration fetches one run by ID.
func (s *Store) GetCalibration(ctx context.Context, id uuid.UUID) (Calibration, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+selectColumns+` FROM calibrations WHERE id = $1`, id)
	c, err := scanCalibration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Calibration{}, ErrNotFound
	}
	return c, err
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS calibrations CASCADE;`)
	return err
}
