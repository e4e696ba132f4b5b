package repository

import (
	"context"
	"fmt"

	"github.com/opsconsole/console/common/engine"
)

const taskColumns = `id, title, description, assignee_id, priority, status, due_date, process_id, process_run_id, step_id, created_at`

// ListTasks returns every task, oldest first
func (s *ProcessStore) ListTasks(ctx context.Context) ([]engine.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM task ORDER BY created_at, id`)
}

// TasksForRun returns the tasks produced by one run, oldest first
func (s *ProcessStore) TasksForRun(ctx context.Context, runID string) ([]engine.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM task WHERE process_run_id = $1 ORDER BY created_at, id`, runID)
}

func (s *ProcessStore) queryTasks(ctx context.Context, query string, args ...any) ([]engine.Task, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]engine.Task, 0)
	for rows.Next() {
		var (
			t                engine.Task
			priority, status string
		)
		if err := rows.Scan(
			&t.ID,
			&t.Title,
			&t.Description,
			&t.AssigneeID,
			&priority,
			&status,
			&t.DueDate,
			&t.ProcessID,
			&t.ProcessRunID,
			&t.StepID,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Priority = engine.TaskPriority(priority)
		t.Status = engine.TaskStatus(status)
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func upsertTask(ctx context.Context, q dbtx, t engine.TaskDraft) error {
	query := `
		INSERT INTO task (id, title, description, assignee_id, priority, status, due_date, process_id, process_run_id, step_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    assignee_id = EXCLUDED.assignee_id,
		    priority = EXCLUDED.priority,
		    status = EXCLUDED.status,
		    due_date = EXCLUDED.due_date
	`
	_, err := q.Exec(ctx, query,
		t.ID,
		t.Title,
		t.Description,
		t.AssigneeID,
		string(t.Priority),
		string(t.Status),
		t.DueDate,
		t.ProcessID,
		t.ProcessRunID,
		t.StepID,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}
