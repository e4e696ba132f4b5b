package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTemplate is returned when starting a run against a template with no steps
	ErrEmptyTemplate = errors.New("template has no steps")

	// ErrUnassignedStep is returned when the step about to become active has no resolvable assignee
	ErrUnassignedStep = errors.New("step has no resolvable assignee")

	// ErrStaleTemplateReference is returned when work was computed against a version
	// that is no longer the latest
	ErrStaleTemplateReference = errors.New("template reference is stale")

	// ErrOrphanedRun is returned when a run's pinned template version no longer exists
	ErrOrphanedRun = errors.New("run references a missing template version")

	// ErrInvalidTransition is returned for a run status change the state machine forbids
	ErrInvalidTransition = errors.New("invalid run status transition")

	// ErrStepMissing is returned when a run's current step is absent from its pinned version
	ErrStepMissing = errors.New("current step missing from template version")
)

// UnassignedStepError carries which step could not be assigned
type UnassignedStepError struct {
	StepID       string
	StepTitle    string
	AssigneeType AssigneeType
	AssigneeID   string
}

func (e *UnassignedStepError) Error() string {
	return fmt.Sprintf("no assignee for step %q (%s %q)", e.StepTitle, e.AssigneeType, e.AssigneeID)
}

func (e *UnassignedStepError) Unwrap() error {
	return ErrUnassignedStep
}

// StaleTemplateError describes the version mismatch behind ErrStaleTemplateReference
type StaleTemplateError struct {
	ProcessID string
	Base      int
	Latest    int
}

func (e *StaleTemplateError) Error() string {
	return fmt.Sprintf("process %s: edit based on version %d, latest is %d", e.ProcessID, e.Base, e.Latest)
}

func (e *StaleTemplateError) Unwrap() error {
	return ErrStaleTemplateReference
}

// TransitionError describes a rejected status change. Action is set instead
// of To when the rejected operation is not a plain status change.
type TransitionError struct {
	From   RunStatus
	To     RunStatus
	Action string
}

func (e *TransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("cannot %s a %s run", e.Action, e.From)
	}
	return fmt.Sprintf("cannot move run from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ErrorCode maps an engine error to a stable code the UI can switch on.
// Unknown errors map to "internal".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyTemplate):
		return "empty_template"
	case errors.Is(err, ErrUnassignedStep):
		return "unassigned_step"
	case errors.Is(err, ErrStaleTemplateReference):
		return "stale_template_reference"
	case errors.Is(err, ErrOrphanedRun):
		return "orphaned_run"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStepMissing):
		return "step_missing"
	default:
		return "internal"
	}
}
