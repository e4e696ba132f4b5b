package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsconsole/console/common/engine"
)

const runColumns = `id, process_id, template_version, current_step_id, status, started_at, completed_at, linked_task_ids`

// GetRun retrieves a run by id
func (s *ProcessStore) GetRun(ctx context.Context, runID string) (engine.ProcessRun, error) {
	runs, err := s.queryRuns(ctx, s.db, `SELECT `+runColumns+` FROM process_run WHERE id = $1`, runID)
	if err != nil {
		return engine.ProcessRun{}, err
	}
	if len(runs) == 0 {
		return engine.ProcessRun{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return runs[0], nil
}

// ListRuns returns every run in insertion order, including runs whose
// template version no longer exists
func (s *ProcessStore) ListRuns(ctx context.Context) ([]engine.ProcessRun, error) {
	return s.queryRuns(ctx, s.db, `SELECT `+runColumns+` FROM process_run ORDER BY seq`)
}

func (s *ProcessStore) queryRuns(ctx context.Context, q dbtx, query string, args ...any) ([]engine.ProcessRun, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]engine.ProcessRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (engine.ProcessRun, error) {
	var (
		run    engine.ProcessRun
		status string
		linked []byte
	)
	err := row.Scan(
		&run.ID,
		&run.ProcessID,
		&run.TemplateVersion,
		&run.CurrentStepID,
		&status,
		&run.StartedAt,
		&run.CompletedAt,
		&linked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ProcessRun{}, ErrNotFound
	}
	if err != nil {
		return engine.ProcessRun{}, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = engine.RunStatus(status)
	if err := json.Unmarshal(linked, &run.LinkedTaskIDs); err != nil {
		return engine.ProcessRun{}, fmt.Errorf("failed to decode linked tasks of run %s: %w", run.ID, err)
	}
	if run.LinkedTaskIDs == nil {
		run.LinkedTaskIDs = []string{}
	}
	return run, nil
}

// upsertRun writes the run's full state
func upsertRun(ctx context.Context, q dbtx, run engine.ProcessRun) error {
	return writeRun(ctx, q, run, `
		ON CONFLICT (id) DO UPDATE
		SET current_step_id = EXCLUDED.current_step_id,
		    status = EXCLUDED.status,
		    completed_at = EXCLUDED.completed_at,
		    linked_task_ids = EXCLUDED.linked_task_ids
	`)
}

// insertRun stores a run only if it is not stored yet, leaving the
// committed state of an existing run untouched
func insertRun(ctx context.Context, q dbtx, run engine.ProcessRun) error {
	return writeRun(ctx, q, run, `ON CONFLICT (id) DO NOTHING`)
}

func writeRun(ctx context.Context, q dbtx, run engine.ProcessRun, onConflict string) error {
	linked := run.LinkedTaskIDs
	if linked == nil {
		linked = []string{}
	}
	linkedJSON, err := json.Marshal(linked)
	if err != nil {
		return fmt.Errorf("failed to encode linked tasks: %w", err)
	}

	query := `
		INSERT INTO process_run (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	` + onConflict
	_, err = q.Exec(ctx, query,
		run.ID,
		run.ProcessID,
		run.TemplateVersion,
		run.CurrentStepID,
		string(run.Status),
		run.StartedAt,
		nullableTime(run.CompletedAt),
		linkedJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}
