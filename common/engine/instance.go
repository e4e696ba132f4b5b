package engine

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTaskDueWindow is how long a generated task has until it is due
const DefaultTaskDueWindow = 7 * 24 * time.Hour

// Engine instantiates and advances runs
type Engine struct {
	Clock           clock.Clock
	IDs             IDFunc
	TaskDueWindow   time.Duration
	DefaultPriority TaskPriority
}

// NewEngine creates an Engine with the default due window and priority
func NewEngine(c clock.Clock, ids IDFunc) *Engine {
	return &Engine{
		Clock:           orDefaultClock(c),
		IDs:             orDefaultIDs(ids),
		TaskDueWindow:   DefaultTaskDueWindow,
		DefaultPriority: PriorityMedium,
	}
}

// StartResult is everything one successful Start produces
type StartResult struct {
	Run  ProcessRun
	Task TaskDraft

	// Template is the input template with Run appended
	Template ProcessTemplate
}

// Intents returns the writes that must be committed together
func (r StartResult) Intents() []Intent {
	return []Intent{SaveTemplate{Template: r.Template}, SaveTask{Task: r.Task}}
}

// Start creates a run against template and the task for its first step.
// Callers must pass the latest version of the process; the run is pinned to
// template.Version. On error nothing is produced.
func (e *Engine) Start(template ProcessTemplate, positions []OrgPosition, users []User) (StartResult, error) {
	return e.StartIn(template, NewDirectory(positions, users))
}

// StartIn is Start against an already indexed directory
func (e *Engine) StartIn(template ProcessTemplate, dir Directory) (StartResult, error) {
	steps := template.OrderedSteps()
	if len(steps) == 0 {
		return StartResult{}, fmt.Errorf("start process %s: %w", template.ID, ErrEmptyTemplate)
	}

	first := steps[0]
	assigneeID, ok := ResolveIn(first, dir)
	if !ok {
		return StartResult{}, fmt.Errorf("start process %s: %w", template.ID, unassigned(first))
	}

	now := e.now()
	ids := orDefaultIDs(e.IDs)
	runID := ids()
	taskID := ids()

	run := ProcessRun{
		ID:              runID,
		ProcessID:       template.ID,
		TemplateVersion: template.EffectiveVersion(),
		CurrentStepID:   first.ID,
		Status:          RunActive,
		StartedAt:       now,
		LinkedTaskIDs:   []string{taskID},
	}

	updated := cloneTemplate(template)
	updated.Version = template.EffectiveVersion()
	updated.Runs = append(updated.Runs, cloneRun(run))

	return StartResult{
		Run:      run,
		Task:     e.taskFor(template, first, runID, taskID, assigneeID, now),
		Template: updated,
	}, nil
}

// Transition applies a status change. Allowed moves are active->completed,
// active->paused and paused->active; completed is terminal.
func (e *Engine) Transition(run ProcessRun, to RunStatus) (ProcessRun, error) {
	if !CanTransition(run.Status, to) {
		return ProcessRun{}, &TransitionError{From: run.Status, To: to}
	}

	next := cloneRun(run)
	next.Status = to
	if to == RunCompleted {
		now := e.now()
		next.CompletedAt = &now
	}
	return next, nil
}

// CanTransition reports whether from->to is a legal status change
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunActive:
		return to == RunCompleted || to == RunPaused
	case RunPaused:
		return to == RunActive
	default:
		return false
	}
}

func (e *Engine) taskFor(template ProcessTemplate, step ProcessStep, runID, taskID, assigneeID string, now time.Time) TaskDraft {
	window := e.TaskDueWindow
	if window <= 0 {
		window = DefaultTaskDueWindow
	}
	priority := e.DefaultPriority
	if priority == "" {
		priority = PriorityMedium
	}

	return TaskDraft{
		ID:           taskID,
		Title:        fmt.Sprintf("%s: %s", template.Title, step.Title),
		Description:  step.Description,
		AssigneeID:   assigneeID,
		Priority:     priority,
		Status:       TaskTodo,
		DueDate:      now.Add(window),
		ProcessID:    template.ID,
		ProcessRunID: runID,
		StepID:       step.ID,
	}
}

func (e *Engine) now() time.Time {
	return orDefaultClock(e.Clock).Now()
}
