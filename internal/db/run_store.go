package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Failure codes stored with failed runs. They stay stable across changes to
// error message wording.
const (
	CodeConfig      = "config"
	CodeUnsupported = "unsupported"
	CodeGeometry    = "geometry"
	CodeTruth       = "truth"
	CodeCancelled   = "cancelled"
	CodeOther       = "other"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// ErrorCode classifies a run error. nil maps to "".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tileangle.ErrUnknownConvention), errors.Is(err, tileangle.ErrUnknownMode),
		errors.Is(err, helix.ErrZeroField):
		return CodeConfig
	case errors.Is(err, tileangle.ErrNotSupported):
		return CodeUnsupported
	case errors.Is(err, geometry.ErrUnknownTile), errors.Is(err, geometry.ErrUnknownModule):
		return CodeGeometry
	case errors.Is(err, frames.ErrUnknownMCIndex):
		return CodeTruth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	}
	return CodeOther
}

// Run is one persisted analysis of one input file.
type Run struct {
	RunID       string                `json:"run_id"`
	InputPath   string                `json:"input_path"`
	Mode        string                `json:"mode"`
	Convention  string                `json:"convention"`
	Policy      string                `json:"policy"`
	PhiPlane    string                `json:"phi_plane"`
	FrameLimit  int                   `json:"frame_limit"`
	Status      string                `json:"status"`
	Error       string                `json:"error,omitempty"`
	ErrorCode   string                `json:"error_code,omitempty"`
	Stats       *tileangle.MatchStats `json:"stats,omitempty"`
	SampleCount int                   `json:"sample_count"`
	CreatedAt   int64                 `json:"created_at"`
	CompletedAt int64                 `json:"completed_at,omitempty"`
}

// RunStore persists analysis runs and their samples.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// InsertRun records the start of a run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	return retryOnBusy(s.clock, func() error {
		_, err := s.db.Exec(`
			INSERT INTO analysis_runs (
				run_id, input_path, mode, convention, policy, phi_plane,
				frame_limit, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.InputPath, run.Mode, run.Convention, run.Policy, run.PhiPlane,
			run.FrameLimit, run.Status, run.CreatedAt,
		)
		return err
	})
}

// CompleteRun marks a run finished. A non-nil runErr marks it failed.
func (s *RunStore) CompleteRun(runID string, stats *tileangle.MatchStats, runErr error) error {
	status := StatusCompleted
	var errText, errCode interface{}
	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
		errCode = ErrorCode(runErr)
	}
	var statsJSON interface{}
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		statsJSON = string(b)
	}

	return retryOnBusy(s.clock, func() error {
		result, err := s.db.Exec(`
			UPDATE analysis_runs
			SET status = ?, error = ?, error_code = ?, stats_json = ?, completed_at = ?
			WHERE run_id = ?`,
			status, errText, errCode, statsJSON, s.clock.Now().UnixNano(), runID,
		)
		if err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

// InsertSamples stores the samples of rs in order and updates the run's
// sample count.
func (s *RunStore) InsertSamples(runID string, rs *tileangle.ResultSet) error {
	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		var base int
		if err := tx.QueryRow(`SELECT sample_count FROM analysis_runs WHERE run_id = ?`, runID).Scan(&base); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return fmt.Errorf("query run: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO run_samples (run_id, seq, tile_id, angle, z) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare samples: %w", err)
		}
		defer stmt.Close()
		for i := 0; i < rs.Len(); i++ {
			if _, err := stmt.Exec(runID, base+i, int64(rs.TileID[i]), rs.Angle[i], rs.Z[i]); err != nil {
				return fmt.Errorf("insert sample %d: %w", i, err)
			}
		}

		if _, err := tx.Exec(`UPDATE analysis_runs SET sample_count = ? WHERE run_id = ?`, base+rs.Len(), runID); err != nil {
			return fmt.Errorf("update sample count: %w", err)
		}
		return tx.Commit()
	})
}

const runColumns = `run_id, input_path, mode, convention, policy, phi_plane, frame_limit,
	status, COALESCE(error, ''), COALESCE(error_code, ''), stats_json, sample_count, created_at, COALESCE(completed_at, 0)`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r         Run
		statsJSON sql.NullString
	)
	err := row.Scan(&r.RunID, &r.InputPath, &r.Mode, &r.Convention, &r.Policy, &r.PhiPlane, &r.FrameLimit,
		&r.Status, &r.Error, &r.ErrorCode, &statsJSON, &r.SampleCount, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if statsJSON.Valid {
		r.Stats = &tileangle.MatchStats{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of %s: %w", r.RunID, err)
		}
	}
	return &r, nil
}

// GetRun returns a single run by id.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs ordered by creation time, newest first. limit <= 0
// returns all runs.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Samples returns the stored samples of a run in insertion order.
func (s *RunStore) Samples(runID string) ([]tileangle.MatchResult, error) {
	rows, err := s.db.Query(`SELECT tile_id, angle, z FROM run_samples WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []tileangle.MatchResult
	for rows.Next() {
		var (
			id int64
			m  tileangle.MatchResult
		)
		if err := rows.Scan(&id, &m.Angle, &m.Z); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		m.TileID = geometry.TileID(id)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its samples.
func (s *RunStore) DeleteRun(runID string) error {
	return retryOnBusy(s.clock, func() error {
		if _, err := s.db.Exec(`DELETE FROM run_samples WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete samples: %w", err)
		}
		result, err := s.db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}
