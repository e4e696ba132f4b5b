package engine

// StepState is the display state of one step for one run
type StepState string

const (
	StepPending   StepState = "pending"
	StepActive    StepState = "active"
	StepCompleted StepState = "completed"
)

// StepStateOf computes a step's state for run against template, which must
// be the version the run was started against. A nil run leaves every step
// pending; a completed run marks every step completed. A step that is not
// part of template is pending.
func StepStateOf(step ProcessStep, run *ProcessRun, template ProcessTemplate) StepState {
	if run == nil {
		return StepPending
	}
	if run.IsCompleted() {
		return StepCompleted
	}

	idx := template.StepIndex(step.ID)
	if idx < 0 {
		return StepPending
	}
	current := template.StepIndex(run.CurrentStepID)

	switch {
	case idx < current:
		return StepCompleted
	case idx == current:
		return StepActive
	default:
		return StepPending
	}
}

// StepProgress pairs a step with its state
type StepProgress struct {
	Step  ProcessStep `json:"step"`
	State StepState   `json:"state"`
}

// RunProgress is the full display model of one run
type RunProgress struct {
	Run ProcessRun `json:"run"`

	// Orphaned is set when the pinned template version no longer exists
	Orphaned bool `json:"orphaned"`

	// CurrentStepMissing is set when the pinned version exists but does not
	// contain the run's current step
	CurrentStepMissing bool `json:"current_step_missing"`

	Title string         `json:"title,omitempty"`
	Steps []StepProgress `json:"steps"`
}

// Progress computes every step's state for run against its pinned version.
// A nil or mismatched pinned template yields an orphaned progress rather
// than an error so history stays inspectable.
func Progress(run ProcessRun, pinned *ProcessTemplate) RunProgress {
	p := RunProgress{Run: cloneRun(run), Steps: []StepProgress{}}
	if pinned == nil || pinned.ID != run.ProcessID || pinned.EffectiveVersion() != run.TemplateVersion {
		p.Orphaned = true
		return p
	}

	p.Title = pinned.Title
	if !run.IsCompleted() && pinned.StepIndex(run.CurrentStepID) < 0 {
		p.CurrentStepMissing = true
	}
	for _, step := range pinned.OrderedSteps() {
		p.Steps = append(p.Steps, StepProgress{
			Step:  step,
			State: StepStateOf(step, &run, *pinned),
		})
	}
	return p
}

// ProgressIn looks up run's pinned version in all and computes Progress
func ProgressIn(run ProcessRun, all []ProcessTemplate) RunProgress {
	pinned, ok := FindVersion(run.ProcessID, run.TemplateVersion, all)
	if !ok {
		return Progress(run, nil)
	}
	return Progress(run, &pinned)
}

// PinnedTemplate returns the version run was started against, or ErrOrphanedRun
func PinnedTemplate(run ProcessRun, all []ProcessTemplate) (ProcessTemplate, error) {
	pinned, ok := FindVersion(run.ProcessID, run.TemplateVersion, all)
	if !ok {
		return ProcessTemplate{}, ErrOrphanedRun
	}
	return pinned, nil
}
