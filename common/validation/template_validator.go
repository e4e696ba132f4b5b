package validation

import (
	"fmt"
	"strings"

	"github.com/opsconsole/console/common/engine"
)

// MaxSteps caps the length of a template's step list
const MaxSteps = 100

// editablePaths are the JSON Patch roots a caller may touch. Identity,
// version, timestamps and runs are owned by the engine.
var editablePaths = []string{"/title", "/description", "/steps", "/is_archived"}

// TemplateValidator validates template edits and JSON Patch operations
type TemplateValidator struct{}

// NewTemplateValidator creates a new template validator
func NewTemplateValidator() *TemplateValidator {
	return &TemplateValidator{}
}

// ValidateEdit checks an edit before it reaches the version manager
func (v *TemplateValidator) ValidateEdit(edit engine.TemplateEdit) error {
	if strings.TrimSpace(edit.Title) == "" {
		return fmt.Errorf("template validation failed: title is required")
	}

	if len(edit.Steps) > MaxSteps {
		return fmt.Errorf("template validation failed: at most %d steps allowed (got %d)", MaxSteps, len(edit.Steps))
	}

	seen := make(map[string]int, len(edit.Steps))
	for i, step := range edit.Steps {
		if err := v.validateStep(step, i); err != nil {
			return err
		}
		if step.ID == "" {
			continue
		}
		if prev, dup := seen[step.ID]; dup {
			return fmt.Errorf("step %d: duplicate id %q (also step %d)", i, step.ID, prev)
		}
		seen[step.ID] = i
	}

	return nil
}

func (v *TemplateValidator) validateStep(step engine.ProcessStep, index int) error {
	if strings.TrimSpace(step.Title) == "" {
		return fmt.Errorf("step %d: title is required", index)
	}

	switch step.AssigneeType {
	case engine.AssigneePosition, engine.AssigneeUser:
	default:
		return fmt.Errorf("step %d: assignee_type must be %q or %q, got %q",
			index, engine.AssigneePosition, engine.AssigneeUser, step.AssigneeType)
	}

	if step.Order < 0 {
		return fmt.Errorf("step %d: order must not be negative", index)
	}

	return nil
}

// ValidateOperations validates JSON Patch operations against a template edit
func (v *TemplateValidator) ValidateOperations(operations []map[string]interface{}) error {
	if len(operations) == 0 {
		return fmt.Errorf("patch validation failed: no operations")
	}

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
	}

	return nil
}

// validateOperation validates a single operation
func (v *TemplateValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	if !isEditable(path) {
		return fmt.Errorf("operation %d: path %q is not editable", index, path)
	}

	switch opType {
	case "add", "replace", "test":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}

		if path == "/steps/-" {
			if err := v.validateStepValue(op["value"], index); err != nil {
				return err
			}
		}

	case "move", "copy":
		from, ok := op["from"].(string)
		if !ok {
			return fmt.Errorf("operation %d: 'from' required for %s operation", index, opType)
		}
		if !isEditable(from) {
			return fmt.Errorf("operation %d: from path %q is not editable", index, from)
		}

	case "remove":
		if path == "/title" {
			return fmt.Errorf("operation %d: title cannot be removed", index)
		}

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

// validateStepValue validates a step appended through a patch
func (v *TemplateValidator) validateStepValue(value interface{}, opIndex int) error {
	stepValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: step value must be an object, got %T", opIndex, value)
	}

	if _, ok := stepValue["title"].(string); !ok {
		return fmt.Errorf("operation %d: step must have 'title' field (string)", opIndex)
	}

	if _, ok := stepValue["assignee_type"].(string); !ok {
		return fmt.Errorf("operation %d: step must have 'assignee_type' field (string)", opIndex)
	}

	return nil
}

func isEditable(path string) bool {
	for _, root := range editablePaths {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
