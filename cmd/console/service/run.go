package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
	"github.com/opsconsole/console/common/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunServiceOptions tunes RunService
type RunServiceOptions struct {
	// StartRetries bounds recomputation when a start loses the commit race
	StartRetries int
	// StartPolicy throttles run starts per user
	StartPolicy ratelimit.Policy
}

// RunService starts, inspects and moves process runs
type RunService struct {
	store   Store
	catalog *Catalog
	engine  *engine.Engine
	filters *engine.RunFilterEvaluator
	locker  Locker
	events  Publisher
	limiter Limiter
	opts    RunServiceOptions
	tracer  trace.Tracer
	log     *logger.Logger
}

// NewRunService creates a new run service
func NewRunService(
	store Store,
	catalog *Catalog,
	eng *engine.Engine,
	locker Locker,
	events Publisher,
	limiter Limiter,
	opts RunServiceOptions,
	tracer trace.Tracer,
	log *logger.Logger,
) *RunService {
	if opts.StartRetries < 1 {
		opts.StartRetries = 1
	}
	return &RunService{
		store:   store,
		catalog: catalog,
		engine:  eng,
		filters: engine.NewRunFilterEvaluator(),
		locker:  locker,
		events:  events,
		limiter: limiter,
		opts:    opts,
		tracer:  tracer,
		log:     log,
	}
}

// Start creates a run of the latest version of a process and the task for
// its first step. Losing the commit race to a concurrent edit re-reads the
// latest version and tries again.
func (s *RunService) Start(ctx context.Context, actor, processID string) (engine.StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "run.start",
		trace.WithAttributes(attribute.String("process.id", processID)))
	defer span.End()

	if err := s.checkStartLimit(ctx, actor); err != nil {
		return engine.StartResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, processID)
	if err != nil {
		return engine.StartResult{}, err
	}
	defer unlock()

	log := s.log.WithProcessID(processID).WithUser(actor)

	var lastErr error
	for attempt := 1; attempt <= s.opts.StartRetries; attempt++ {
		res, err := s.startOnce(ctx, processID)
		if err == nil {
			s.committed(ctx, actor, processID, res.Intents())
			span.SetAttributes(attribute.String("run.id", res.Run.ID))
			log.WithRunID(res.Run.ID).Info("run started",
				"version", res.Run.TemplateVersion,
				"step_id", res.Run.CurrentStepID,
				"assignee_id", res.Task.AssigneeID,
				"attempt", attempt)
			return res, nil
		}
		if !errors.Is(err, engine.ErrStaleTemplateReference) {
			return engine.StartResult{}, err
		}
		lastErr = err
		log.Warn("run start lost commit race, retrying", "attempt", attempt, "error", err)
	}

	return engine.StartResult{}, fmt.Errorf("start process %s after %d attempts: %w", processID, s.opts.StartRetries, lastErr)
}

func (s *RunService) startOnce(ctx context.Context, processID string) (engine.StartResult, error) {
	versions, err := s.catalog.Fresh(ctx, processID)
	if err != nil {
		return engine.StartResult{}, fmt.Errorf("failed to load process %s: %w", processID, err)
	}
	latest, ok := engine.FindLatestByProcessID(processID, versions)
	if !ok {
		return engine.StartResult{}, fmt.Errorf("process %s: %w", processID, ErrNotFound)
	}

	dir, err := s.directory(ctx)
	if err != nil {
		return engine.StartResult{}, err
	}

	res, err := s.engine.StartIn(latest, dir)
	if err != nil {
		return engine.StartResult{}, err
	}

	guard := &repository.Guard{ProcessID: processID, LatestVersion: latest.EffectiveVersion()}
	if err := s.store.Apply(ctx, guard, res.Intents()...); err != nil {
		return engine.StartResult{}, fmt.Errorf("failed to commit run of %s: %w", processID, err)
	}
	return res, nil
}

func (s *RunService) checkStartLimit(ctx context.Context, actor string) error {
	if s.limiter == nil || actor == "" || !s.opts.StartPolicy.Enabled() {
		return nil
	}
	result, err := s.limiter.Check(ctx, s.opts.StartPolicy, actor)
	if err != nil {
		// fail open
		s.log.Warn("run start limit check failed", "user_id", actor, "error", err)
		return nil
	}
	if !result.Allowed {
		return &RateLimitedError{Limit: result.Limit, RetryAfterSeconds: result.RetryAfterSeconds}
	}
	return nil
}

// RunDetail is a run's progress plus the tasks it produced
type RunDetail struct {
	engine.RunProgress
	Tasks []engine.Task `json:"tasks"`
}

// Progress computes the step states of one run against its pinned version
func (s *RunService) Progress(ctx context.Context, runID string) (RunDetail, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	versions, err := s.catalog.Versions(ctx, run.ProcessID)
	if err != nil {
		return RunDetail{}, fmt.Errorf("failed to load process %s: %w", run.ProcessID, err)
	}
	tasks, err := s.store.TasksForRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}

	return RunDetail{
		RunProgress: engine.ProgressIn(run, versions),
		Tasks:       tasks,
	}, nil
}

// Dashboard lists every stored run joined with its pinned version and
// tasks, newest first. Run state is read from the run table. A version
// missing from the cached snapshot is re-read from the store before the run
// is listed as orphaned with a nil template.
func (s *RunService) Dashboard(ctx context.Context, filter engine.RunFilter) ([]engine.RunView, error) {
	ctx, span := s.tracer.Start(ctx, "run.dashboard")
	defer span.End()

	if filter.Expression != "" {
		if err := s.filters.Compile(filter.Expression); err != nil {
			return nil, invalid(err)
		}
	}

	templates, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	views := engine.JoinRuns(runs, templates, tasks)
	if missing := engine.Unpinned(views); len(missing) > 0 {
		templates = templates[:len(templates):len(templates)]
		for _, processID := range missing {
			versions, err := s.catalog.Fresh(ctx, processID)
			if err != nil {
				return nil, fmt.Errorf("failed to load process %s: %w", processID, err)
			}
			templates = append(templates, versions...)
		}
		views = engine.JoinRuns(runs, templates, tasks)
	}

	out, err := s.filters.Filter(views, filter)
	if err != nil {
		return nil, invalid(err)
	}
	engine.SortByStartedAt(out, true)

	span.SetAttributes(attribute.Int("runs.total", len(views)), attribute.Int("runs.matched", len(out)))
	return out, nil
}

// Transition changes a run's status
func (s *RunService) Transition(ctx context.Context, actor, runID string, to engine.RunStatus) (engine.ProcessRun, error) {
	ctx, span := s.tracer.Start(ctx, "run.transition",
		trace.WithAttributes(attribute.String("run.id", runID), attribute.String("run.target", string(to))))
	defer span.End()

	run, unlock, err := s.lockedRun(ctx, runID)
	if err != nil {
		return engine.ProcessRun{}, err
	}
	defer unlock()

	next, err := s.engine.Transition(run, to)
	if err != nil {
		return engine.ProcessRun{}, err
	}

	intents := []engine.Intent{engine.SaveRun{Run: next}}
	if err := s.store.Apply(ctx, nil, intents...); err != nil {
		return engine.ProcessRun{}, fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	s.committed(ctx, actor, run.ProcessID, intents)

	s.log.WithProcessID(run.ProcessID).WithRunID(runID).WithUser(actor).Info("run status changed",
		"from", run.Status, "to", next.Status)
	return next, nil
}

// Advance completes the run's current step and moves it to the next one,
// or completes the run on its last step
func (s *RunService) Advance(ctx context.Context, actor, runID string) (engine.AdvanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "run.advance",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	run, unlock, err := s.lockedRun(ctx, runID)
	if err != nil {
		return engine.AdvanceResult{}, err
	}
	defer unlock()

	versions, err := s.catalog.Fresh(ctx, run.ProcessID)
	if err != nil {
		return engine.AdvanceResult{}, fmt.Errorf("failed to load process %s: %w", run.ProcessID, err)
	}
	var pinned *engine.ProcessTemplate
	if t, err := engine.PinnedTemplate(run, versions); err == nil {
		pinned = &t
	}

	dir, err := s.directory(ctx)
	if err != nil {
		return engine.AdvanceResult{}, err
	}

	res, err := s.engine.AdvanceIn(run, pinned, dir)
	if err != nil {
		return engine.AdvanceResult{}, err
	}

	intents := res.Intents()
	if err := s.store.Apply(ctx, nil, intents...); err != nil {
		return engine.AdvanceResult{}, fmt.Errorf("failed to advance run %s: %w", runID, err)
	}
	s.committed(ctx, actor, run.ProcessID, intents)

	s.log.WithProcessID(run.ProcessID).WithRunID(runID).WithUser(actor).Info("run advanced",
		"from_step", run.CurrentStepID,
		"to_step", res.Run.CurrentStepID,
		"status", res.Run.Status)
	return res, nil
}

// lockedRun loads a run and holds its process lock. The run is re-read
// after locking so the caller sees the committed state.
func (s *RunService) lockedRun(ctx context.Context, runID string) (engine.ProcessRun, func(), error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return engine.ProcessRun{}, nil, err
	}

	unlock, err := s.locker.Lock(ctx, run.ProcessID)
	if err != nil {
		return engine.ProcessRun{}, nil, err
	}

	run, err = s.store.GetRun(ctx, runID)
	if err != nil {
		unlock()
		return engine.ProcessRun{}, nil, err
	}
	return run, unlock, nil
}

func (s *RunService) directory(ctx context.Context) (engine.Directory, error) {
	positions, users, err := s.store.Directory(ctx)
	if err != nil {
		return engine.Directory{}, fmt.Errorf("failed to load org directory: %w", err)
	}
	return engine.NewDirectory(positions, users), nil
}

func (s *RunService) committed(ctx context.Context, actor, processID string, intents []engine.Intent) {
	s.catalog.Invalidate(ctx, processID)
	s.events.Publish(ctx, actor, intents)
}
