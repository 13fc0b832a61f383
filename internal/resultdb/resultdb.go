package resultdb

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tanksight/refract3d/internal/geom"
	"github.com/tanksight/refract3d/internal/reconstruct"
)

// schema.sql defines the runs and points tables for persisted
// reconstruction output.
//
//go:embed schema.sql
var schemaSQL string

// ResultDB stores reconstruction runs and their solved points in sqlite.
type ResultDB struct {
	*sql.DB
}

// Open opens (creating if needed) a results database at path and applies
// the schema.
func Open(path string) (*ResultDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply results schema: %w", err)
	}
	return &ResultDB{db}, nil
}

// RunInfo describes one batch run for the runs table.
type RunInfo struct {
	RunID           string
	CalibrationPath string
	CameraCount     int
	UnitCount       int
	FailureCount    int
}

// InsertRun records run provenance.
func (db *ResultDB) InsertRun(info RunInfo) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, calibration_path, camera_count, unit_count, failure_count)
		 VALUES (?, ?, ?, ?, ?)`,
		info.RunID, info.CalibrationPath, info.CameraCount, info.UnitCount, info.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", info.RunID, err)
	}
	return nil
}

// InsertResults stores a run's points in one transaction.
func (db *ResultDB) InsertResults(runID string, results []reconstruct.Result) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO points (run_id, frame, target, x, y, z, residual, used_ray_count,
		                     rejected_ray_count, reprojection_error, high_residual, out_of_bounds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range results {
		_, err := stmt.Exec(
			runID, r.Frame, r.Target,
			r.Point.X, r.Point.Y, r.Point.Z,
			r.Residual, r.UsedRayCount, len(r.RejectedRays),
			r.ReprojectionError, boolToInt(r.HighResidual), boolToInt(r.OutOfBounds),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert point frame=%d target=%d: %w", r.Frame, r.Target, err)
		}
	}
	return tx.Commit()
}

// ResultsForRun returns a run's points ordered by (frame, target). The
// schema stores only the rejected-ray count, so RejectedRays is nil on
// loaded results; the record stream is the lossless representation.
func (db *ResultDB) ResultsForRun(runID string) ([]reconstruct.Result, error) {
	rows, err := db.Query(
		`SELECT frame, target, x, y, z, residual, used_ray_count, reprojection_error,
		        high_residual, out_of_bounds
		 FROM points WHERE run_id = ? ORDER BY frame, target`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []reconstruct.Result
	for rows.Next() {
		var r reconstruct.Result
		var p geom.Vec3
		var high, oob int
		if err := rows.Scan(&r.Frame, &r.Target, &p.X, &p.Y, &p.Z,
			&r.Residual, &r.UsedRayCount, &r.ReprojectionError, &high, &oob); err != nil {
			return nil, err
		}
		r.Point = p
		r.HighResidual = high != 0
		r.OutOfBounds = oob != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// FrameCount returns the number of distinct frames stored for a run.
func (db *ResultDB) FrameCount(runID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(DISTINCT frame) FROM points WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
