package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dashboardFixture() ([]ProcessTemplate, []Task) {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	templates := []ProcessTemplate{
		{ID: "hire", Version: 1, Title: "Hiring", Runs: []ProcessRun{
			{ID: "h1", ProcessID: "hire", TemplateVersion: 1, Status: RunCompleted, StartedAt: base},
		}},
		{ID: "hire", Version: 2, Title: "Hiring v2", Runs: []ProcessRun{
			{ID: "h2", ProcessID: "hire", TemplateVersion: 2, Status: RunActive, StartedAt: base.Add(48 * time.Hour)},
		}},
		{ID: "pay", Version: 1, Title: "Payout", Runs: []ProcessRun{
			{ID: "p1", ProcessID: "pay", TemplateVersion: 1, Status: RunPaused, StartedAt: base.Add(24 * time.Hour)},
		}},
	}
	tasks := []Task{
		{TaskDraft: TaskDraft{ID: "t1", ProcessRunID: "h1"}},
		{TaskDraft: TaskDraft{ID: "t2", ProcessRunID: "h2"}},
		{TaskDraft: TaskDraft{ID: "t3", ProcessRunID: "h2"}},
		{TaskDraft: TaskDraft{ID: "loose"}},
	}
	return templates, tasks
}

func TestAllRuns(t *testing.T) {
	templates, tasks := dashboardFixture()

	views := AllRuns(templates, tasks)
	require.Len(t, views, 3)

	assert.Equal(t, "h1", views[0].Run.ID)
	assert.Equal(t, "Hiring", views[0].Template.Title)
	assert.Len(t, views[0].Tasks, 1)

	assert.Equal(t, "h2", views[1].Run.ID)
	assert.Equal(t, "Hiring v2", views[1].Template.Title, "joined with the pinned version")
	assert.Len(t, views[1].Tasks, 2)
	assert.Nil(t, views[1].Template.Runs)

	assert.Equal(t, "p1", views[2].Run.ID)
	assert.Empty(t, views[2].Tasks)
}

func TestFilter(t *testing.T) {
	templates, tasks := dashboardFixture()
	views := AllRuns(templates, tasks)

	assert.Len(t, Filter(views, RunFilter{}), 3)
	assert.Len(t, Filter(views, RunFilter{HideCompleted: true}), 2)
	assert.Len(t, Filter(views, RunFilter{Status: RunPaused}), 1)
	assert.Len(t, Filter(views, RunFilter{ProcessID: "hire", HideCompleted: true}), 1)
}

func TestSortByStartedAt(t *testing.T) {
	templates, tasks := dashboardFixture()
	views := AllRuns(templates, tasks)

	SortByStartedAt(views, true)
	assert.Equal(t, "h2", views[0].Run.ID)
	assert.Equal(t, "p1", views[1].Run.ID)
	assert.Equal(t, "h1", views[2].Run.ID)

	SortByStartedAt(views, false)
	assert.Equal(t, "h1", views[0].Run.ID)
}

func TestJoinRuns(t *testing.T) {
	templates, tasks := dashboardFixture()

	// h2 as stored now, newer than the copy hydrated into the templates
	current := templates[1].Runs[0]
	current.Status = RunCompleted
	runs := []ProcessRun{
		current,
		{ID: "g1", ProcessID: "gone", TemplateVersion: 1, Status: RunActive},
		{ID: "g2", ProcessID: "gone", TemplateVersion: 2, Status: RunActive},
		templates[0].Runs[0],
	}

	views := JoinRuns(runs, templates, tasks)
	require.Len(t, views, 4)

	assert.Equal(t, "h2", views[0].Run.ID)
	assert.Equal(t, RunCompleted, views[0].Run.Status, "run state comes from the runs given")
	require.NotNil(t, views[0].Template)
	assert.Equal(t, "Hiring v2", views[0].Template.Title)
	assert.Nil(t, views[0].Template.Runs)
	assert.Len(t, views[0].Tasks, 2)

	assert.Nil(t, views[1].Template)
	assert.Empty(t, views[1].Tasks)
	assert.Nil(t, views[2].Template)

	require.NotNil(t, views[3].Template)
	assert.Equal(t, "Hiring", views[3].Template.Title)

	assert.Equal(t, []string{"gone"}, Unpinned(views))
	assert.Empty(t, Unpinned(views[:1]))
}
