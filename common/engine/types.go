// Package engine implements the business-process core: versioned process
// templates, assignee resolution, run instantiation and run aggregation.
//
// Every function in this package is a pure function of its inputs. Nothing
// here performs I/O, spawns goroutines or reads the wall clock directly; time
// and ids are injected so results are reproducible when replayed against the
// same snapshot.
package engine

import (
	"sort"
	"time"
)

// AssigneeType discriminates how a step's AssigneeID is interpreted
type AssigneeType string

const (
	AssigneePosition AssigneeType = "position"
	AssigneeUser     AssigneeType = "user"
)

// RunStatus represents the lifecycle state of a process run
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
)

// TaskPriority of a unit of work
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskStatus of a unit of work
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// ProcessStep is one ordered unit of work inside a template version
type ProcessStep struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	AssigneeType AssigneeType `json:"assignee_type"`
	AssigneeID   string       `json:"assignee_id"`
	Order        int          `json:"order"`
}

// ProcessTemplate is one immutable version of a process definition.
// All versions of the same logical process share ID.
type ProcessTemplate struct {
	ID          string        `json:"id"`
	Version     int           `json:"version"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Steps       []ProcessStep `json:"steps"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	IsArchived  bool          `json:"is_archived"`

	// Runs started against this specific version
	Runs []ProcessRun `json:"runs"`
}

// EffectiveVersion returns Version, reading a missing (zero) version as 1
func (t ProcessTemplate) EffectiveVersion() int {
	if t.Version <= 0 {
		return 1
	}
	return t.Version
}

// OrderedSteps returns the steps sorted by Order. Ties keep slice position.
// The template itself is not modified.
func (t ProcessTemplate) OrderedSteps() []ProcessStep {
	steps := make([]ProcessStep, len(t.Steps))
	copy(steps, t.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// StepIndex returns the position of stepID within OrderedSteps, or -1
func (t ProcessTemplate) StepIndex(stepID string) int {
	for i, s := range t.OrderedSteps() {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// ProcessRun is one execution of a template version
type ProcessRun struct {
	ID              string     `json:"id"`
	ProcessID       string     `json:"process_id"`
	TemplateVersion int        `json:"template_version"`
	CurrentStepID   string     `json:"current_step_id"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LinkedTaskIDs   []string   `json:"linked_task_ids"`
}

// IsCompleted reports whether the run reached its terminal state
func (r ProcessRun) IsCompleted() bool {
	return r.Status == RunCompleted
}

// OrgPosition is an organizational role. HolderUserID is empty while vacant.
type OrgPosition struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	HolderUserID string `json:"holder_user_id"`
}

// User is a person who can be assigned work
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskDraft is the unit of work produced when a run reaches a step
type TaskDraft struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	AssigneeID   string       `json:"assignee_id"`
	Priority     TaskPriority `json:"priority"`
	Status       TaskStatus   `json:"status"`
	DueDate      time.Time    `json:"due_date"`
	ProcessID    string       `json:"process_id"`
	ProcessRunID string       `json:"process_run_id"`
	StepID       string       `json:"step_id"`
}

// Task is a persisted unit of work, as read back from the task collection
type Task struct {
	TaskDraft
	CreatedAt time.Time `json:"created_at"`
}
