package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsconsole/console/common/engine"
)

// Guard is the optimistic check Apply runs before writing: the latest
// stored version of ProcessID must still be LatestVersion (0 when the
// process must not exist yet)
type Guard struct {
	ProcessID     string
	LatestVersion int
}

// Apply commits intents as one transaction. With a guard, the transaction
// takes a per-process advisory lock and fails with
// engine.ErrStaleTemplateReference if another writer got there first.
func (s *ProcessStore) Apply(ctx context.Context, guard *Guard, intents ...engine.Intent) error {
	if len(intents) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if guard != nil {
			if err := checkGuard(ctx, tx, *guard); err != nil {
				return err
			}
		}

		for _, intent := range intents {
			if err := applyIntent(ctx, tx, intent); err != nil {
				return fmt.Errorf("apply %s for %s: %w", intent.Kind(), intent.ProcessID(), err)
			}
		}
		return nil
	})
}

func checkGuard(ctx context.Context, tx pgx.Tx, g Guard) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, g.ProcessID); err != nil {
		return fmt.Errorf("failed to lock process %s: %w", g.ProcessID, err)
	}

	var latest int
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM process_template WHERE id = $1`, g.ProcessID,
	).Scan(&latest)
	if err != nil {
		return fmt.Errorf("failed to read latest version of %s: %w", g.ProcessID, err)
	}

	if latest != g.LatestVersion {
		return &engine.StaleTemplateError{ProcessID: g.ProcessID, Base: g.LatestVersion, Latest: latest}
	}
	return nil
}

func applyIntent(ctx context.Context, tx pgx.Tx, intent engine.Intent) error {
	switch in := intent.(type) {
	case engine.SaveTemplate:
		return upsertTemplate(ctx, tx, in.Template)
	case engine.DeleteTemplate:
		return deleteTemplate(ctx, tx, in.ID)
	case engine.SaveTask:
		return upsertTask(ctx, tx, in.Task)
	case engine.SaveRun:
		return upsertRun(ctx, tx, in.Run)
	default:
		return fmt.Errorf("unsupported intent %T", intent)
	}
}
