package engine

// Intent is an instruction for the persistence collaborator. A slice of
// intents returned by one engine call must be applied as a single unit.
type Intent interface {
	// Kind names the intent for logs and event streams
	Kind() string
	// ProcessID is the identity the write must be serialized on
	ProcessID() string
}

// SaveTemplate upserts one template version by (ID, Version), including the
// runs attached to it
type SaveTemplate struct {
	Template ProcessTemplate
}

func (SaveTemplate) Kind() string        { return "save_template" }
func (i SaveTemplate) ProcessID() string { return i.Template.ID }

// DeleteTemplate removes a process identity
type DeleteTemplate struct {
	ID string
}

func (DeleteTemplate) Kind() string        { return "delete_template" }
func (i DeleteTemplate) ProcessID() string { return i.ID }

// SaveTask creates or updates a unit of work
type SaveTask struct {
	Task TaskDraft
}

func (SaveTask) Kind() string        { return "save_task" }
func (i SaveTask) ProcessID() string { return i.Task.ProcessID }

// SaveRun upserts a single run without touching its template
type SaveRun struct {
	Run ProcessRun
}

func (SaveRun) Kind() string        { return "save_run" }
func (i SaveRun) ProcessID() string { return i.Run.ProcessID }
