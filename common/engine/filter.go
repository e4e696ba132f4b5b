package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// RunFilterEvaluator evaluates CEL filter expressions over run views.
// Compiled programs are cached per expression.
type RunFilterEvaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewRunFilterEvaluator creates an evaluator with an empty program cache
func NewRunFilterEvaluator() *RunFilterEvaluator {
	return &RunFilterEvaluator{
		cache: make(map[string]cel.Program),
	}
}

// Compile checks expr without evaluating it
func (e *RunFilterEvaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Filter applies the structural filter and then, when f.Expression is set,
// keeps only views for which the expression is true
func (e *RunFilterEvaluator) Filter(views []RunView, f RunFilter) ([]RunView, error) {
	narrowed := Filter(views, f)
	if f.Expression == "" {
		return narrowed, nil
	}

	prg, err := e.program(f.Expression)
	if err != nil {
		return nil, err
	}

	out := make([]RunView, 0, len(narrowed))
	for _, v := range narrowed {
		ok, err := e.eval(prg, v)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Match evaluates expr against a single view
func (e *RunFilterEvaluator) Match(expr string, v RunView) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	return e.eval(prg, v)
}

// CacheSize returns the number of cached programs
func (e *RunFilterEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *RunFilterEvaluator) eval(prg cel.Program, v RunView) (bool, error) {
	out, _, err := prg.Eval(map[string]interface{}{
		"run":      runActivation(v),
		"template": templateActivation(v.Template),
	})
	if err != nil {
		return false, fmt.Errorf("filter evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *RunFilterEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()
	if exists {
		return prg, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("run", cel.DynType),
		cel.Variable("template", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter compilation error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter program: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()

	return prg, nil
}

func runActivation(v RunView) map[string]interface{} {
	return map[string]interface{}{
		"id":               v.Run.ID,
		"process_id":       v.Run.ProcessID,
		"template_version": int64(v.Run.TemplateVersion),
		"current_step_id":  v.Run.CurrentStepID,
		"status":           string(v.Run.Status),
		"started_at":       v.Run.StartedAt,
		"task_count":       int64(len(v.Tasks)),
		"orphaned":         v.Template == nil,
	}
}

func templateActivation(t *ProcessTemplate) map[string]interface{} {
	if t == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"version":     int64(t.EffectiveVersion()),
		"is_archived": t.IsArchived,
		"step_count":  int64(len(t.Steps)),
	}
}
