package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opsconsole/console/common/db"
	"github.com/opsconsole/console/common/engine"
)

// ErrNotFound is returned when a run, task or template does not exist
var ErrNotFound = errors.New("not found")

// dbtx is satisfied by both the pool and a transaction
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessStore persists templates, runs, tasks and the org directory
type ProcessStore struct {
	db *db.DB
}

// NewProcessStore creates a new process store
func NewProcessStore(db *db.DB) *ProcessStore {
	return &ProcessStore{db: db}
}

const templateColumns = `id, version, title, description, steps, is_archived, created_at, updated_at`

// ListTemplates returns every stored version of every process with runs
// hydrated into the version they are pinned to
func (s *ProcessStore) ListTemplates(ctx context.Context) ([]engine.ProcessTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM process_template ORDER BY id, version`
	templates, err := s.queryTemplates(ctx, s.db, query)
	if err != nil {
		return nil, err
	}

	runs, err := s.queryRuns(ctx, s.db, `SELECT `+runColumns+` FROM process_run ORDER BY seq`)
	if err != nil {
		return nil, err
	}

	return hydrate(templates, runs), nil
}

// TemplateVersions returns every stored version of one process, oldest
// first, with runs hydrated. An unknown process yields an empty slice.
func (s *ProcessStore) TemplateVersions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error) {
	return s.templateVersions(ctx, s.db, processID)
}

func (s *ProcessStore) templateVersions(ctx context.Context, q dbtx, processID string) ([]engine.ProcessTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM process_template WHERE id = $1 ORDER BY version`
	templates, err := s.queryTemplates(ctx, q, query, processID)
	if err != nil {
		return nil, err
	}

	runs, err := s.queryRuns(ctx, q,
		`SELECT `+runColumns+` FROM process_run WHERE process_id = $1 ORDER BY seq`, processID)
	if err != nil {
		return nil, err
	}

	return hydrate(templates, runs), nil
}

func (s *ProcessStore) queryTemplates(ctx context.Context, q dbtx, query string, args ...any) ([]engine.ProcessTemplate, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := make([]engine.ProcessTemplate, 0)
	for rows.Next() {
		var (
			t     engine.ProcessTemplate
			steps []byte
		)
		if err := rows.Scan(
			&t.ID,
			&t.Version,
			&t.Title,
			&t.Description,
			&steps,
			&t.IsArchived,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps of %s v%d: %w", t.ID, t.Version, err)
		}
		t.Runs = []engine.ProcessRun{}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

// hydrate attaches runs to the version they are pinned to. Runs whose
// version is gone are dropped here and surface through ListRuns instead.
func hydrate(templates []engine.ProcessTemplate, runs []engine.ProcessRun) []engine.ProcessTemplate {
	type key struct {
		id      string
		version int
	}
	index := make(map[key]int, len(templates))
	for i, t := range templates {
		index[key{t.ID, t.Version}] = i
	}
	for _, r := range runs {
		if i, ok := index[key{r.ProcessID, r.TemplateVersion}]; ok {
			templates[i].Runs = append(templates[i].Runs, r)
		}
	}
	return templates
}

func upsertTemplate(ctx context.Context, q dbtx, t engine.ProcessTemplate) error {
	steps, err := json.Marshal(nonNilSteps(t.Steps))
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `
		INSERT INTO process_template (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id, version) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    steps = EXCLUDED.steps,
		    is_archived = EXCLUDED.is_archived,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		t.ID,
		t.EffectiveVersion(),
		t.Title,
		t.Description,
		steps,
		t.IsArchived,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template %s v%d: %w", t.ID, t.EffectiveVersion(), err)
	}

	// run state belongs to SaveRun; a template save only adds new runs
	for _, run := range t.Runs {
		if err := insertRun(ctx, q, run); err != nil {
			return err
		}
	}
	return nil
}

func deleteTemplate(ctx context.Context, q dbtx, processID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM process_template WHERE id = $1`, processID); err != nil {
		return fmt.Errorf("failed to delete process %s: %w", processID, err)
	}
	return nil
}

func nonNilSteps(steps []engine.ProcessStep) []engine.ProcessStep {
	if steps == nil {
		return []engine.ProcessStep{}
	}
	return steps
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
