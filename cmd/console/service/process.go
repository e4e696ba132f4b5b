package service

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
	"github.com/opsconsole/console/common/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessService manages process templates and their versions
type ProcessService struct {
	store     Store
	catalog   *Catalog
	versioner *engine.Versioner
	validator *validation.TemplateValidator
	locker    Locker
	events    Publisher
	tracer    trace.Tracer
	log       *logger.Logger
}

// NewProcessService creates a new process service
func NewProcessService(
	store Store,
	catalog *Catalog,
	versioner *engine.Versioner,
	locker Locker,
	events Publisher,
	tracer trace.Tracer,
	log *logger.Logger,
) *ProcessService {
	return &ProcessService{
		store:     store,
		catalog:   catalog,
		versioner: versioner,
		validator: validation.NewTemplateValidator(),
		locker:    locker,
		events:    events,
		tracer:    tracer,
		log:       log,
	}
}

// List returns the latest version of every process, archived ones only when
// archived is set
func (s *ProcessService) List(ctx context.Context, archived bool) ([]engine.ProcessTemplate, error) {
	all, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	if archived {
		return engine.LatestArchived(all), nil
	}
	return engine.LatestVisible(all), nil
}

// Get returns the latest version of a process
func (s *ProcessService) Get(ctx context.Context, processID string) (engine.ProcessTemplate, error) {
	versions, err := s.catalog.Versions(ctx, processID)
	if err != nil {
		return engine.ProcessTemplate{}, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	latest, ok := engine.FindLatestByProcessID(processID, versions)
	if !ok {
		return engine.ProcessTemplate{}, fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}
	return latest, nil
}

// GetVersion returns one stored version of a process
func (s *ProcessService) GetVersion(ctx context.Context, processID string, version int) (engine.ProcessTemplate, error) {
	versions, err := s.catalog.Versions(ctx, processID)
	if err != nil {
		return engine.ProcessTemplate{}, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	t, ok := engine.FindVersion(processID, version, versions)
	if !ok {
		return engine.ProcessTemplate{}, fmt.Errorf("process %s version %d: %w", processID, version, ErrNotFound)
	}
	return t, nil
}

// Versions returns every stored version of a process, oldest first
func (s *ProcessService) Versions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error) {
	versions, err := s.catalog.Versions(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	out := engine.Versions(processID, versions)
	if len(out) == 0 {
		return nil, fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}
	return out, nil
}

// Runs returns every run of a process across all of its versions
func (s *ProcessService) Runs(ctx context.Context, processID string) ([]engine.ProcessRun, error) {
	versions, err := s.catalog.Versions(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	return engine.AllRunsAcrossVersions(processID, versions), nil
}

// Create saves version 1 of a new process
func (s *ProcessService) Create(ctx context.Context, actor string, edit engine.TemplateEdit) (engine.ProcessTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "process.create")
	defer span.End()

	if err := s.validator.ValidateEdit(edit); err != nil {
		return engine.ProcessTemplate{}, invalid(err)
	}

	saved := s.versioner.Save(edit, nil)
	span.SetAttributes(attribute.String("process.id", saved.ID))

	unlock, err := s.locker.Lock(ctx, saved.ID)
	if err != nil {
		return engine.ProcessTemplate{}, err
	}
	defer unlock()

	intents := []engine.Intent{engine.SaveTemplate{Template: saved}}
	if err := s.store.Apply(ctx, &repository.Guard{ProcessID: saved.ID}, intents...); err != nil {
		return engine.ProcessTemplate{}, fmt.Errorf("failed to create process %s: %w", saved.ID, err)
	}
	s.committed(ctx, actor, saved.ID, intents)

	s.log.WithProcessID(saved.ID).WithUser(actor).Info("process created", "title", saved.Title)
	return saved, nil
}

// Update saves edit on top of baseVersion. Unchanged content only touches
// the current version; anything else publishes a new one. A base that is no
// longer the latest fails with engine.ErrStaleTemplateReference.
func (s *ProcessService) Update(ctx context.Context, actor, processID string, baseVersion int, edit engine.TemplateEdit) (engine.ProcessTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "process.update",
		trace.WithAttributes(attribute.String("process.id", processID), attribute.Int("process.base_version", baseVersion)))
	defer span.End()

	edit.ID = processID
	if err := s.validator.ValidateEdit(edit); err != nil {
		return engine.ProcessTemplate{}, invalid(err)
	}

	unlock, err := s.locker.Lock(ctx, processID)
	if err != nil {
		return engine.ProcessTemplate{}, err
	}
	defer unlock()

	return s.save(ctx, actor, processID, baseVersion, func(engine.ProcessTemplate) (engine.TemplateEdit, error) {
		return edit, nil
	})
}

// Patch applies an RFC 6902 JSON Patch to the editable fields of the latest
// version and saves the result like Update
func (s *ProcessService) Patch(ctx context.Context, actor, processID string, baseVersion int, patchJSON []byte) (engine.ProcessTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "process.patch",
		trace.WithAttributes(attribute.String("process.id", processID), attribute.Int("process.base_version", baseVersion)))
	defer span.End()

	var ops []map[string]interface{}
	if err := json.Unmarshal(patchJSON, &ops); err != nil {
		return engine.ProcessTemplate{}, invalid(fmt.Errorf("patch must be a JSON array of operations: %w", err))
	}
	if err := s.validator.ValidateOperations(ops); err != nil {
		return engine.ProcessTemplate{}, invalid(err)
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return engine.ProcessTemplate{}, invalid(fmt.Errorf("failed to decode patch: %w", err))
	}

	unlock, err := s.locker.Lock(ctx, processID)
	if err != nil {
		return engine.ProcessTemplate{}, err
	}
	defer unlock()

	return s.save(ctx, actor, processID, baseVersion, func(latest engine.ProcessTemplate) (engine.TemplateEdit, error) {
		edit, err := applyPatch(patch, engine.EditOf(latest))
		if err != nil {
			return engine.TemplateEdit{}, invalid(err)
		}
		edit.ID = processID
		if err := s.validator.ValidateEdit(edit); err != nil {
			return engine.TemplateEdit{}, invalid(err)
		}
		return edit, nil
	})
}

// save runs under the process lock
func (s *ProcessService) save(
	ctx context.Context,
	actor, processID string,
	baseVersion int,
	editFor func(latest engine.ProcessTemplate) (engine.TemplateEdit, error),
) (engine.ProcessTemplate, error) {
	versions, err := s.catalog.Fresh(ctx, processID)
	if err != nil {
		return engine.ProcessTemplate{}, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	latest, ok := engine.FindLatestByProcessID(processID, versions)
	if !ok {
		return engine.ProcessTemplate{}, fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}
	if err := engine.CheckFresh(processID, baseVersion, versions); err != nil {
		return engine.ProcessTemplate{}, err
	}

	edit, err := editFor(latest)
	if err != nil {
		return engine.ProcessTemplate{}, err
	}

	saved := s.versioner.Save(edit, &latest)
	intents := []engine.Intent{engine.SaveTemplate{Template: saved}}
	guard := &repository.Guard{ProcessID: processID, LatestVersion: latest.EffectiveVersion()}
	if err := s.store.Apply(ctx, guard, intents...); err != nil {
		return engine.ProcessTemplate{}, fmt.Errorf("failed to save process %s: %w", processID, err)
	}
	s.committed(ctx, actor, processID, intents)

	s.log.WithProcessID(processID).WithUser(actor).Info("process saved",
		"base_version", baseVersion,
		"version", saved.Version,
		"new_version", saved.Version != latest.EffectiveVersion())
	return saved, nil
}

// Delete removes every version of a process. Runs and tasks stay and show
// up as orphaned.
func (s *ProcessService) Delete(ctx context.Context, actor, processID string) error {
	ctx, span := s.tracer.Start(ctx, "process.delete",
		trace.WithAttributes(attribute.String("process.id", processID)))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, processID)
	if err != nil {
		return err
	}
	defer unlock()

	versions, err := s.catalog.Fresh(ctx, processID)
	if err != nil {
		return fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	latest, ok := engine.FindLatestByProcessID(processID, versions)
	if !ok {
		return fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}

	intents := []engine.Intent{s.versioner.Delete(processID)}
	guard := &repository.Guard{ProcessID: processID, LatestVersion: latest.EffectiveVersion()}
	if err := s.store.Apply(ctx, guard, intents...); err != nil {
		return fmt.Errorf("failed to delete process %s: %w", processID, err)
	}
	s.committed(ctx, actor, processID, intents)

	s.log.WithProcessID(processID).WithUser(actor).Info("process deleted", "versions", len(versions))
	return nil
}

func (s *ProcessService) committed(ctx context.Context, actor, processID string, intents []engine.Intent) {
	s.catalog.Invalidate(ctx, processID)
	s.events.Publish(ctx, actor, intents)
}

func applyPatch(patch jsonpatch.Patch, edit engine.TemplateEdit) (engine.TemplateEdit, error) {
	doc, err := json.Marshal(edit)
	if err != nil {
		return engine.TemplateEdit{}, fmt.Errorf("failed to encode template: %w", err)
	}

	patched, err := patch.Apply(doc)
	if err != nil {
		return engine.TemplateEdit{}, fmt.Errorf("failed to apply patch operations: %w", err)
	}

	var out engine.TemplateEdit
	if err := json.Unmarshal(patched, &out); err != nil {
		return engine.TemplateEdit{}, fmt.Errorf("patched template is malformed: %w", err)
	}
	return out, nil
}
