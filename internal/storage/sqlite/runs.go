package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one invocation of the renderer.
type Run struct {
	RunID      string          `json:"run_id"`
	VideoKey   string          `json:"video_key"`
	Status     string          `json:"status"`
	ConfigJSON json.RawMessage `json:"config,omitempty"`
	Stats      *pipeline.Stats `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunStore records render runs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a RunStore on db.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Start inserts run in the running state. A RunID is generated when empty.
func (s *RunStore) Start(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunStatusRunning

	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO heatmap_runs (run_id, video_key, status, config_json, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.VideoKey, run.Status, cfg, run.StartedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// Finish records the outcome of a run. runErr may be nil.
func (s *RunStore) Finish(runID string, stats pipeline.Stats, runErr error) error {
	status := RunStatusCompleted
	var errMsg interface{}
	if runErr != nil {
		status = RunStatusFailed
		errMsg = runErr.Error()
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding run stats: %w", err)
	}
	finished := time.Now().UTC().UnixNano()

	err = retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE heatmap_runs
			SET status = ?, stats_json = ?, error = ?, finished_at = ?
			WHERE run_id = ?`,
			status, string(statsJSON), errMsg, finished, runID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `run_id, video_key, status, config_json, stats_json, error, started_at, finished_at`

// Get returns a run by id.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM heatmap_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return r, err
}

// List returns up to limit runs, newest first. videoKey filters when
// non-empty; limit <= 0 means no limit.
func (s *RunStore) List(videoKey string, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM heatmap_runs`
	var args []interface{}
	if videoKey != "" {
		query += ` WHERE video_key = ?`
		args = append(args, videoKey)
	}
	query += ` ORDER BY started_at DESC`
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
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                  Run
		cfg, stats, errMsg sql.NullString
		startedAt          int64
		finishedAt         sql.NullInt64
	)
	if err := sc.Scan(&r.RunID, &r.VideoKey, &r.Status, &cfg, &stats, &errMsg, &startedAt, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	if stats.Valid {
		var st pipeline.Stats
		if err := json.Unmarshal([]byte(stats.String), &st); err != nil {
			return nil, fmt.Errorf("decode stats for run %s: %w", r.RunID, err)
		}
		r.Stats = &st
	}
	r.Error = errMsg.String
	r.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}
