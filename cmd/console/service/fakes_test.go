package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
	"github.com/opsconsole/console/common/ratelimit"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"
)

type versionKey struct {
	id      string
	version int
}

// memStore mirrors the postgres store: runs live apart from templates and
// survive template deletion
type memStore struct {
	mu        sync.Mutex
	templates map[versionKey]engine.ProcessTemplate
	runs      []engine.ProcessRun
	tasks     []engine.Task
	positions []engine.OrgPosition
	users     []engine.User
	applies   int

	// beforeApply runs inside Apply ahead of the guard check
	beforeApply func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{templates: make(map[versionKey]engine.ProcessTemplate)}
}

func (s *memStore) ListTemplates(ctx context.Context) ([]engine.ProcessTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated(""), nil
}

func (s *memStore) TemplateVersions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated(processID), nil
}

func (s *memStore) GetRun(ctx context.Context, runID string) (engine.ProcessRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return engine.ProcessRun{}, fmt.Errorf("run %s: %w", runID, repository.ErrNotFound)
}

func (s *memStore) ListRuns(ctx context.Context) ([]engine.ProcessRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.ProcessRun(nil), s.runs...), nil
}

func (s *memStore) ListTasks(ctx context.Context) ([]engine.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Task(nil), s.tasks...), nil
}

func (s *memStore) TasksForRun(ctx context.Context, runID string) ([]engine.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Task, 0)
	for _, t := range s.tasks {
		if t.ProcessRunID == runID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Directory(ctx context.Context) ([]engine.OrgPosition, []engine.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.OrgPosition(nil), s.positions...), append([]engine.User(nil), s.users...), nil
}

func (s *memStore) SavePosition(ctx context.Context, p engine.OrgPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID == p.ID {
			s.positions[i] = p
			return nil
		}
	}
	s.positions = append(s.positions, p)
	return nil
}

func (s *memStore) SaveUser(ctx context.Context, u engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == u.ID {
			s.users[i] = u
			return nil
		}
	}
	s.users = append(s.users, u)
	return nil
}

func (s *memStore) Apply(ctx context.Context, guard *repository.Guard, intents ...engine.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.beforeApply != nil {
		s.beforeApply(s)
	}
	if guard != nil {
		if latest := s.latest(guard.ProcessID); latest != guard.LatestVersion {
			return &engine.StaleTemplateError{ProcessID: guard.ProcessID, Base: guard.LatestVersion, Latest: latest}
		}
	}

	s.applies++
	for _, intent := range intents {
		switch in := intent.(type) {
		case engine.SaveTemplate:
			t := in.Template
			for _, r := range t.Runs {
				s.insertRun(r)
			}
			t.Runs = nil
			s.templates[versionKey{t.ID, t.EffectiveVersion()}] = t
		case engine.DeleteTemplate:
			for k := range s.templates {
				if k.id == in.ID {
					delete(s.templates, k)
				}
			}
		case engine.SaveTask:
			s.upsertTask(in.Task)
		case engine.SaveRun:
			s.upsertRun(in.Run)
		default:
			return fmt.Errorf("unsupported intent %T", intent)
		}
	}
	return nil
}

// put stores a template version directly, bypassing guards
func (s *memStore) put(t engine.ProcessTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range t.Runs {
		s.upsertRun(r)
	}
	t.Runs = nil
	s.templates[versionKey{t.ID, t.EffectiveVersion()}] = t
}

func (s *memStore) latest(processID string) int {
	latest := 0
	for k := range s.templates {
		if k.id == processID && k.version > latest {
			latest = k.version
		}
	}
	return latest
}

func (s *memStore) hydrated(processID string) []engine.ProcessTemplate {
	out := make([]engine.ProcessTemplate, 0)
	for k, t := range s.templates {
		if processID != "" && k.id != processID {
			continue
		}
		t.Runs = []engine.ProcessRun{}
		for _, r := range s.runs {
			if r.ProcessID == k.id && r.TemplateVersion == k.version {
				t.Runs = append(t.Runs, r)
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out
}

func (s *memStore) upsertRun(r engine.ProcessRun) {
	for i := range s.runs {
		if s.runs[i].ID == r.ID {
			s.runs[i] = r
			return
		}
	}
	s.runs = append(s.runs, r)
}

func (s *memStore) insertRun(r engine.ProcessRun) {
	for i := range s.runs {
		if s.runs[i].ID == r.ID {
			return
		}
	}
	s.runs = append(s.runs, r)
}

func (s *memStore) upsertTask(d engine.TaskDraft) {
	for i := range s.tasks {
		if s.tasks[i].ID == d.ID {
			s.tasks[i].TaskDraft = d
			return
		}
	}
	s.tasks = append(s.tasks, engine.Task{TaskDraft: d})
}

// fakeLocker records lock calls and fails with err when set
type fakeLocker struct {
	mu       sync.Mutex
	err      error
	locked   []string
	unlocked int
}

func (l *fakeLocker) Lock(ctx context.Context, processID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, processID)
	return func() {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
	}, nil
}

// recordingPublisher keeps every published intent kind
type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) Publish(ctx context.Context, actor string, intents []engine.Intent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, in := range intents {
		p.kinds = append(p.kinds, in.Kind())
	}
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Check(ctx context.Context, policy ratelimit.Policy, subject string) (*ratelimit.RateLimitResult, error) {
	args := m.Called(ctx, policy, subject)
	result, _ := args.Get(0).(*ratelimit.RateLimitResult)
	return result, args.Error(1)
}

type fixture struct {
	store     *memStore
	locker    *fakeLocker
	events    *recordingPublisher
	limiter   *mockLimiter
	processes *ProcessService
	runs      *RunService
}

func newFixture(opts RunServiceOptions) *fixture {
	log := logger.New("error", "json")
	tracer := noop.NewTracerProvider().Tracer("test")

	f := &fixture{
		store:   newMemStore(),
		locker:  &fakeLocker{},
		events:  &recordingPublisher{},
		limiter: &mockLimiter{},
	}
	catalog := NewCatalog(f.store, nil)
	f.processes = NewProcessService(f.store, catalog, engine.NewVersioner(nil, nil), f.locker, f.events, tracer, log)
	f.runs = NewRunService(f.store, catalog, engine.NewEngine(nil, nil), f.locker, f.events, f.limiter, opts, tracer, log)
	return f
}

func legalReviewEdit() engine.TemplateEdit {
	return engine.TemplateEdit{
		Title:       "Contract review",
		Description: "Review inbound contracts",
		Steps: []engine.ProcessStep{
			{Title: "Draft", AssigneeType: engine.AssigneeUser, AssigneeID: "u-1", Order: 1},
			{Title: "Legal", AssigneeType: engine.AssigneePosition, AssigneeID: "pos-legal", Order: 2},
		},
	}
}

func (f *fixture) seedDirectory() {
	f.store.positions = []engine.OrgPosition{{ID: "pos-legal", Title: "Legal counsel", HolderUserID: "u-2"}}
	f.store.users = []engine.User{{ID: "u-1", Name: "Ada"}, {ID: "u-2", Name: "Grace"}}
}
