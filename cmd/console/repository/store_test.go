package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsconsole/console/common/db"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestDB(t *testing.T) (*db.DB, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("console"),
		postgres.WithUsername("console"),
		postgres.WithPassword("console"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return db.FromPool(pool, logger.New("error", "json")), connStr
}

func newTestStore(t *testing.T) *ProcessStore {
	t.Helper()
	database, connStr := newTestDB(t)
	require.NoError(t, Migrate(connStr, false))
	return NewProcessStore(database)
}

func TestDBHealthTracksSchema(t *testing.T) {
	database, connStr := newTestDB(t)
	ctx := context.Background()

	err := database.Health(ctx)
	assert.ErrorIs(t, err, db.ErrSchemaNotReady)

	require.NoError(t, Migrate(connStr, false))
	require.NoError(t, database.Health(ctx))

	version, dirty, err := database.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, Migrate(connStr, true))
	assert.ErrorIs(t, database.Health(ctx), db.ErrSchemaNotReady)
}

func TestProcessStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.SaveUser(ctx, engine.User{ID: "u-1", Name: "Ada", Email: "ada@example.com"}))
	require.NoError(t, store.SavePosition(ctx, engine.OrgPosition{ID: "pos-legal", Title: "Legal", HolderUserID: "u-1"}))

	v1 := engine.ProcessTemplate{
		ID:      "p1",
		Version: 1,
		Title:   "Contract review",
		Steps: []engine.ProcessStep{
			{ID: "s1", Title: "Draft", AssigneeType: engine.AssigneeUser, AssigneeID: "u-1", Order: 1},
			{ID: "s2", Title: "Legal", AssigneeType: engine.AssigneePosition, AssigneeID: "pos-legal", Order: 2},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.Run("create guarded on absence", func(t *testing.T) {
		require.NoError(t, store.Apply(ctx, &Guard{ProcessID: "p1"}, engine.SaveTemplate{Template: v1}))

		err := store.Apply(ctx, &Guard{ProcessID: "p1"}, engine.SaveTemplate{Template: v1})
		assert.ErrorIs(t, err, engine.ErrStaleTemplateReference)
	})

	t.Run("run and task commit together", func(t *testing.T) {
		eng := engine.NewEngine(nil, nil)
		positions, users, err := store.Directory(ctx)
		require.NoError(t, err)

		versions, err := store.TemplateVersions(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, versions, 1)

		res, err := eng.Start(versions[0], positions, users)
		require.NoError(t, err)
		require.NoError(t, store.Apply(ctx, &Guard{ProcessID: "p1", LatestVersion: 1}, res.Intents()...))

		run, err := store.GetRun(ctx, res.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, "s1", run.CurrentStepID)
		assert.Equal(t, []string{res.Task.ID}, run.LinkedTaskIDs)

		tasks, err := store.TasksForRun(ctx, res.Run.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "u-1", tasks[0].AssigneeID)

		all, err := store.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Len(t, all[0].Runs, 1)
	})

	t.Run("template save keeps committed run state", func(t *testing.T) {
		eng := engine.NewEngine(nil, nil)
		positions, users, err := store.Directory(ctx)
		require.NoError(t, err)

		snapshot, err := store.TemplateVersions(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, snapshot[0].Runs, 1)
		first := snapshot[0].Runs[0]

		done, err := eng.Transition(first, engine.RunCompleted)
		require.NoError(t, err)
		require.NoError(t, store.Apply(ctx, nil, engine.SaveRun{Run: done}))

		// a start computed from the older snapshot still carries the active run
		res, err := eng.Start(snapshot[0], positions, users)
		require.NoError(t, err)
		require.NoError(t, store.Apply(ctx, &Guard{ProcessID: "p1", LatestVersion: 1}, res.Intents()...))

		got, err := store.GetRun(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, engine.RunCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)

		added, err := store.GetRun(ctx, res.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, engine.RunActive, added.Status)
	})

	t.Run("delete keeps runs", func(t *testing.T) {
		require.NoError(t, store.Apply(ctx, &Guard{ProcessID: "p1", LatestVersion: 1}, engine.DeleteTemplate{ID: "p1"}))

		versions, err := store.TemplateVersions(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, versions)

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := store.GetRun(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
