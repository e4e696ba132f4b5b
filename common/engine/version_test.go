package engine

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVersioner() (*Versioner, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewVersioner(clk, sequentialIDs("id")), clk
}

func approvalSteps() []ProcessStep {
	return []ProcessStep{
		{ID: "s1", Title: "Draft", AssigneeType: AssigneeUser, AssigneeID: "u-1", Order: 1},
		{ID: "s2", Title: "Approve", AssigneeType: AssigneePosition, AssigneeID: "pos-1", Order: 2},
	}
}

func TestVersioner_FirstSave(t *testing.T) {
	v, clk := newTestVersioner()

	tpl := v.Save(TemplateEdit{Title: "Contract approval", Steps: []ProcessStep{{Title: "Draft", Order: 1}}}, nil)

	assert.Equal(t, "id-1", tpl.ID)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, clk.Now(), tpl.CreatedAt)
	assert.Equal(t, clk.Now(), tpl.UpdatedAt)
	assert.NotNil(t, tpl.Runs)
	assert.Empty(t, tpl.Runs)
	require.Len(t, tpl.Steps, 1)
	assert.Equal(t, "id-2", tpl.Steps[0].ID, "steps without ids get fresh ids")
}

func TestVersioner_FirstSaveKeepsGivenID(t *testing.T) {
	v, _ := newTestVersioner()
	tpl := v.Save(TemplateEdit{ID: "proc-1", Title: "x"}, nil)
	assert.Equal(t, "proc-1", tpl.ID)
}

func TestVersioner_ChangedContentCutsNewVersion(t *testing.T) {
	v, clk := newTestVersioner()
	created := clk.Now()

	prev := ProcessTemplate{
		ID: "p", Version: 3, Title: "Old", Steps: approvalSteps(),
		CreatedAt: created, UpdatedAt: created, IsArchived: false,
		Runs: []ProcessRun{{ID: "r1", TemplateVersion: 3}},
	}
	clk.Add(time.Hour)

	next := v.Save(TemplateEdit{Title: "New", Steps: approvalSteps()}, &prev)

	assert.Equal(t, 4, next.Version)
	assert.Equal(t, created, next.CreatedAt, "createdAt carries forward")
	assert.Equal(t, clk.Now(), next.UpdatedAt)
	assert.Empty(t, next.Runs, "new version starts without runs")
	assert.Len(t, prev.Runs, 1, "previous version keeps its runs")
	assert.Equal(t, "Old", prev.Title, "previous is not mutated")
}

func TestVersioner_UnchangedContentTouchesOnly(t *testing.T) {
	v, clk := newTestVersioner()
	created := clk.Now()
	prev := ProcessTemplate{
		ID: "p", Version: 2, Title: "T", Description: "D", Steps: approvalSteps(),
		CreatedAt: created, UpdatedAt: created,
		Runs: []ProcessRun{{ID: "r1", TemplateVersion: 2}},
	}
	clk.Add(time.Minute)

	same := v.Save(TemplateEdit{Title: "T", Description: "D", Steps: approvalSteps()}, &prev)

	assert.Equal(t, 2, same.Version)
	assert.Equal(t, created, same.CreatedAt)
	assert.Equal(t, clk.Now(), same.UpdatedAt)
	assert.Equal(t, prev.Runs, same.Runs)
	assert.Equal(t, created, prev.UpdatedAt, "previous is not mutated")
}

func TestVersioner_StepChangesAreStructural(t *testing.T) {
	base := ProcessTemplate{ID: "p", Version: 1, Title: "T", Steps: approvalSteps()}

	reordered := approvalSteps()
	reordered[0], reordered[1] = reordered[1], reordered[0]

	retitled := approvalSteps()
	retitled[1].Title = "Sign off"

	reassigned := approvalSteps()
	reassigned[0].AssigneeID = "u-2"

	for name, steps := range map[string][]ProcessStep{
		"reordered":  reordered,
		"retitled":   retitled,
		"reassigned": reassigned,
		"removed":    approvalSteps()[:1],
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, ContentChanged(TemplateEdit{Title: "T", Steps: steps}, base))
		})
	}

	assert.False(t, ContentChanged(TemplateEdit{Title: "T", Steps: approvalSteps()}, base))
}

func TestVersioner_ArchiveToggleIsMetadata(t *testing.T) {
	v, _ := newTestVersioner()
	prev := ProcessTemplate{ID: "p", Version: 5, Title: "T", Steps: approvalSteps()}

	archived := true
	out := v.Save(TemplateEdit{Title: "T", Steps: approvalSteps(), IsArchived: &archived}, &prev)

	assert.Equal(t, 5, out.Version)
	assert.True(t, out.IsArchived)
}

func TestVersioner_ChangedKeepsArchiveFlag(t *testing.T) {
	v, _ := newTestVersioner()
	prev := ProcessTemplate{ID: "p", Version: 1, Title: "T", IsArchived: true}

	out := v.Save(TemplateEdit{Title: "T2"}, &prev)
	assert.Equal(t, 2, out.Version)
	assert.True(t, out.IsArchived)
}

func TestVersioner_Monotonic(t *testing.T) {
	v, clk := newTestVersioner()

	edits := []TemplateEdit{
		{Title: "a"},
		{Title: "a"},
		{Title: "b"},
		{Title: "b", Description: "d"},
		{Title: "b", Description: "d"},
	}
	want := []int{1, 1, 2, 3, 3}

	var prev *ProcessTemplate
	for i, e := range edits {
		clk.Add(time.Second)
		e.ID = "p"
		saved := v.Save(e, prev)
		assert.Equal(t, want[i], saved.Version, "save %d", i)
		prev = &saved
	}
}

func TestVersioner_Delete(t *testing.T) {
	v, _ := newTestVersioner()
	intent := v.Delete("p")
	assert.Equal(t, "p", intent.ProcessID())
	assert.Equal(t, "delete_template", intent.Kind())
}

func TestEditOf(t *testing.T) {
	tpl := ProcessTemplate{ID: "p", Title: "T", Description: "D", Steps: approvalSteps(), IsArchived: true}
	edit := EditOf(tpl)
	assert.False(t, ContentChanged(edit, tpl))
	require.NotNil(t, edit.IsArchived)
	assert.True(t, *edit.IsArchived)
}
