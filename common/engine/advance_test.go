package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_MovesToNextStep(t *testing.T) {
	e, _ := newTestEngine()
	tpl := contractTemplate()
	run := ProcessRun{ID: "r", ProcessID: "contract", TemplateVersion: 2, CurrentStepID: "draft", Status: RunActive, LinkedTaskIDs: []string{"t0"}}

	res, err := e.Advance(run, &tpl, testPositions, testUsers)
	require.NoError(t, err)

	assert.Equal(t, "legal", res.Run.CurrentStepID)
	assert.Equal(t, RunActive, res.Run.Status)
	assert.Equal(t, []string{"t0", "gen-1"}, res.Run.LinkedTaskIDs)
	assert.Equal(t, []string{"t0"}, run.LinkedTaskIDs, "input untouched")

	require.NotNil(t, res.Task)
	assert.Equal(t, "u-lawyer", res.Task.AssigneeID)
	assert.Equal(t, "Contract approval: Legal review", res.Task.Title)
	assert.Equal(t, "legal", res.Task.StepID)
	assert.Equal(t, "r", res.Task.ProcessRunID)

	intents := res.Intents()
	require.Len(t, intents, 2)
	assert.IsType(t, SaveRun{}, intents[0])
	assert.IsType(t, SaveTask{}, intents[1])
}

func TestAdvance_LastStepCompletes(t *testing.T) {
	e, clk := newTestEngine()
	tpl := contractTemplate()
	run := ProcessRun{ID: "r", ProcessID: "contract", TemplateVersion: 2, CurrentStepID: "sign", Status: RunActive}

	res, err := e.Advance(run, &tpl, testPositions, testUsers)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, res.Run.Status)
	require.NotNil(t, res.Run.CompletedAt)
	assert.Equal(t, clk.Now(), *res.Run.CompletedAt)
	assert.Nil(t, res.Task)
	assert.Len(t, res.Intents(), 1)
}

func TestAdvance_UnassignedNextStep(t *testing.T) {
	e, _ := newTestEngine()
	tpl := contractTemplate()
	run := ProcessRun{ID: "r", ProcessID: "contract", TemplateVersion: 2, CurrentStepID: "legal", Status: RunActive}

	_, err := e.Advance(run, &tpl, testPositions, testUsers)
	assert.ErrorIs(t, err, ErrUnassignedStep, "pos-ceo is vacant")
}

func TestAdvance_Rejections(t *testing.T) {
	e, _ := newTestEngine()
	tpl := contractTemplate()
	active := ProcessRun{ID: "r", ProcessID: "contract", TemplateVersion: 2, CurrentStepID: "draft", Status: RunActive}

	paused := active
	paused.Status = RunPaused
	_, err := e.Advance(paused, &tpl, testPositions, testUsers)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var rejected *TransitionError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "advance", rejected.Action)
	assert.Empty(t, rejected.To)
	assert.Equal(t, "cannot advance a paused run", err.Error())

	_, err = e.Advance(active, nil, testPositions, testUsers)
	assert.ErrorIs(t, err, ErrOrphanedRun)

	other := tpl
	other.Version = 3
	_, err = e.Advance(active, &other, testPositions, testUsers)
	assert.ErrorIs(t, err, ErrOrphanedRun)

	lost := active
	lost.CurrentStepID = "gone"
	_, err = e.Advance(lost, &tpl, testPositions, testUsers)
	assert.ErrorIs(t, err, ErrStepMissing)
}
