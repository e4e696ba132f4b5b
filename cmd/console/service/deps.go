package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/ratelimit"
)

// ErrNotFound is returned when a process, version or run does not exist
var ErrNotFound = repository.ErrNotFound

// ErrProcessBusy is returned when the per-process write lock could not be taken
var ErrProcessBusy = errors.New("process is being modified, retry shortly")

// ErrInvalidInput wraps request validation failures
var ErrInvalidInput = errors.New("invalid input")

// RateLimitedError is returned when a user exceeds the run start limit
type RateLimitedError struct {
	Limit             int64
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("run start limit of %d per minute exceeded, retry in %ds", e.Limit, e.RetryAfterSeconds)
}

// Store is the persistence the services need
type Store interface {
	ListTemplates(ctx context.Context) ([]engine.ProcessTemplate, error)
	TemplateVersions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error)
	GetRun(ctx context.Context, runID string) (engine.ProcessRun, error)
	ListRuns(ctx context.Context) ([]engine.ProcessRun, error)
	ListTasks(ctx context.Context) ([]engine.Task, error)
	TasksForRun(ctx context.Context, runID string) ([]engine.Task, error)
	Directory(ctx context.Context) ([]engine.OrgPosition, []engine.User, error)
	Apply(ctx context.Context, guard *repository.Guard, intents ...engine.Intent) error
}

// Locker serializes writes per process id
type Locker interface {
	Lock(ctx context.Context, processID string) (unlock func(), err error)
}

// Publisher announces committed intents
type Publisher interface {
	Publish(ctx context.Context, actor string, intents []engine.Intent)
}

// Limiter throttles run starts
type Limiter interface {
	Check(ctx context.Context, policy ratelimit.Policy, subject string) (*ratelimit.RateLimitResult, error)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
