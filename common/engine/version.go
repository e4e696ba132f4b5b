package engine

import (
	"slices"

	"github.com/benbjohnson/clock"
)

// TemplateEdit is the user-editable part of a template
type TemplateEdit struct {
	// ID is optional on first save; a new id is minted when empty
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Steps       []ProcessStep `json:"steps"`

	// IsArchived toggles the soft-delete flag when set
	IsArchived *bool `json:"is_archived,omitempty"`
}

// EditOf extracts the editable fields of a template
func EditOf(t ProcessTemplate) TemplateEdit {
	archived := t.IsArchived
	return TemplateEdit{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Steps:       slices.Clone(t.Steps),
		IsArchived:  &archived,
	}
}

// Versioner decides whether a save is a first version, a new version or a
// metadata touch. Published versions are never rewritten in place.
type Versioner struct {
	Clock clock.Clock
	IDs   IDFunc
}

// NewVersioner creates a Versioner. Nil arguments fall back to the wall
// clock and uuid ids.
func NewVersioner(c clock.Clock, ids IDFunc) *Versioner {
	return &Versioner{Clock: orDefaultClock(c), IDs: orDefaultIDs(ids)}
}

// Save derives the template to persist for edit given the latest stored
// version (nil when the process does not exist yet)
func (v *Versioner) Save(edit TemplateEdit, previous *ProcessTemplate) ProcessTemplate {
	now := orDefaultClock(v.Clock).Now()
	ids := orDefaultIDs(v.IDs)

	if previous == nil {
		id := edit.ID
		if id == "" {
			id = ids()
		}
		return ProcessTemplate{
			ID:          id,
			Version:     1,
			Title:       edit.Title,
			Description: edit.Description,
			Steps:       mintStepIDs(edit.Steps, ids),
			CreatedAt:   now,
			UpdatedAt:   now,
			IsArchived:  edit.IsArchived != nil && *edit.IsArchived,
			Runs:        []ProcessRun{},
		}
	}

	prev := cloneTemplate(*previous)
	archived := prev.IsArchived
	if edit.IsArchived != nil {
		archived = *edit.IsArchived
	}

	if !ContentChanged(edit, prev) {
		prev.Version = prev.EffectiveVersion()
		prev.UpdatedAt = now
		prev.IsArchived = archived
		return prev
	}

	return ProcessTemplate{
		ID:          prev.ID,
		Version:     prev.EffectiveVersion() + 1,
		Title:       edit.Title,
		Description: edit.Description,
		Steps:       mintStepIDs(edit.Steps, ids),
		CreatedAt:   prev.CreatedAt,
		UpdatedAt:   now,
		IsArchived:  archived,
		Runs:        []ProcessRun{},
	}
}

// Delete emits the identity-level delete for processID
func (v *Versioner) Delete(processID string) DeleteTemplate {
	return DeleteTemplate{ID: processID}
}

// ContentChanged compares title, description and the step list. Step
// comparison is structural and order-sensitive: reordering counts as a change.
func ContentChanged(edit TemplateEdit, previous ProcessTemplate) bool {
	if edit.Title != previous.Title || edit.Description != previous.Description {
		return true
	}
	return !slices.Equal(edit.Steps, previous.Steps)
}

func mintStepIDs(steps []ProcessStep, ids IDFunc) []ProcessStep {
	out := make([]ProcessStep, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			s.ID = ids()
		}
		out[i] = s
	}
	return out
}
