package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jonathan/zeroecho/internal/errs"
)

// RunsTable holds one row per recorded pipeline run.
const RunsTable = "pipeline_runs"

const runsSchemaSQL = `CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	dry_run     BOOLEAN NOT NULL DEFAULT FALSE,
	failures    INTEGER NOT NULL DEFAULT 0,
	steps       JSONB NOT NULL DEFAULT '[]',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_started_idx ON %[1]s (started_at DESC);`

// StepStatus constants
const (
	StepStatusCompleted = "completed"
	StepStatusPartial   = "partial"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// RunStep represents a single phase execution within a recorded run
type RunStep struct {
	Phase      string `json:"phase"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
}

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	DryRun     bool      `json:"dry_run"`
	Failures   int       `json:"failures"`
	Steps      []RunStep `json:"steps"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StepStatusFor condenses a phase's counts into a step status.
func StepStatusFor(attempted, succeeded, failed int) string {
	switch {
	case attempted == 0:
		return StepStatusSkipped
	case failed == 0:
		return StepStatusCompleted
	case succeeded == 0:
		return StepStatusFailed
	default:
		return StepStatusPartial
	}
}

// RecordRun inserts or replaces a run record.
func (s *DocumentStore) RecordRun(ctx context.Context, run *RunRecord) error {
	query, args, err := buildRecordRun(s.runsTable, run)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return errs.Wrap(errs.StoreUnavailable, "record run", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *DocumentStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query, args, err := buildListRuns(s.runsTable, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "list runs", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run       RunRecord
			stepsJSON []byte
		)
		if err := rows.Scan(&run.ID, &run.Status, &run.DryRun, &run.Failures, &stepsJSON, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if len(stepsJSON) > 0 {
			if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
				return nil, errs.Wrap(errs.ParseMalformed, "decode run steps", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "list runs", err)
	}
	return runs, nil
}

func buildRecordRun(table string, run *RunRecord) (string, []any, error) {
	if run == nil || run.ID == "" {
		return "", nil, fmt.Errorf("run record requires an id")
	}
	steps := run.Steps
	if steps == nil {
		steps = []RunStep{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal run steps: %w", err)
	}

	return psql.Insert(table).
		Columns("id", "status", "dry_run", "failures", "steps", "started_at", "finished_at").
		Values(run.ID, run.Status, run.DryRun, run.Failures, string(stepsJSON), run.StartedAt, run.FinishedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, failures = EXCLUDED.failures,
			steps = EXCLUDED.steps, finished_at = EXCLUDED.finished_at`).
		ToSql()
}

func buildListRuns(table string, limit int) (string, []any, error) {
	builder := psql.Select("id", "status", "dry_run", "failures", "steps", "started_at", "finished_at").
		From(table).
		OrderBy("started_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return builder.ToSql()
}

// RecordRun stores a copy of run.
func (m *MemoryStore) RecordRun(_ context.Context, run *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("record run"); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record requires an id")
	}
	c := *run
	c.Steps = append([]RunStep(nil), run.Steps...)
	if m.runs == nil {
		m.runs = make(map[string]RunRecord)
	}
	m.runs[run.ID] = c
	return nil
}

// ListRuns returns stored runs, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("list runs"); err != nil {
		return nil, err
	}

	runs := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		r.Steps = append([]RunStep(nil), r.Steps...)
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
