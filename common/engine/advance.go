package engine

import "fmt"

// AdvanceResult is the outcome of moving a run past its current step
type AdvanceResult struct {
	Run ProcessRun

	// Task is nil when the run completed instead of reaching a new step
	Task *TaskDraft
}

// Intents returns the writes that must be committed together
func (r AdvanceResult) Intents() []Intent {
	intents := []Intent{SaveRun{Run: r.Run}}
	if r.Task != nil {
		intents = append(intents, SaveTask{Task: *r.Task})
	}
	return intents
}

// Advance completes the run's current step. On the last step the run is
// completed; otherwise the next step's assignee is resolved now, against
// the current directory, and a task is produced for it. pinned must be the
// version the run was started against.
func (e *Engine) Advance(run ProcessRun, pinned *ProcessTemplate, positions []OrgPosition, users []User) (AdvanceResult, error) {
	return e.AdvanceIn(run, pinned, NewDirectory(positions, users))
}

// AdvanceIn is Advance against an already indexed directory
func (e *Engine) AdvanceIn(run ProcessRun, pinned *ProcessTemplate, dir Directory) (AdvanceResult, error) {
	if run.Status != RunActive {
		return AdvanceResult{}, &TransitionError{From: run.Status, Action: "advance"}
	}
	if pinned == nil || pinned.ID != run.ProcessID || pinned.EffectiveVersion() != run.TemplateVersion {
		return AdvanceResult{}, fmt.Errorf("advance run %s: %w", run.ID, ErrOrphanedRun)
	}

	steps := pinned.OrderedSteps()
	idx := pinned.StepIndex(run.CurrentStepID)
	if idx < 0 {
		return AdvanceResult{}, fmt.Errorf("advance run %s: %w", run.ID, ErrStepMissing)
	}

	if idx == len(steps)-1 {
		done, err := e.Transition(run, RunCompleted)
		if err != nil {
			return AdvanceResult{}, err
		}
		return AdvanceResult{Run: done}, nil
	}

	next := steps[idx+1]
	assigneeID, ok := ResolveIn(next, dir)
	if !ok {
		return AdvanceResult{}, fmt.Errorf("advance run %s: %w", run.ID, unassigned(next))
	}

	now := e.now()
	taskID := orDefaultIDs(e.IDs)()

	moved := cloneRun(run)
	moved.CurrentStepID = next.ID
	moved.LinkedTaskIDs = append(moved.LinkedTaskIDs, taskID)

	task := e.taskFor(*pinned, next, run.ID, taskID, assigneeID, now)
	return AdvanceResult{Run: moved, Task: &task}, nil
}
