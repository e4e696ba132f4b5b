package container

import (
	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/cmd/console/service"
	"github.com/opsconsole/console/common/bootstrap"
	"github.com/opsconsole/console/common/cache"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/ratelimit"
	"go.opentelemetry.io/otel"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	Store *repository.ProcessStore

	// Infrastructure
	Cache       cache.Cache[[]engine.ProcessTemplate]
	RateLimiter *ratelimit.RateLimiter
	Events      *service.EventStream

	// Services
	ProcessService   *service.ProcessService
	RunService       *service.RunService
	DirectoryService *service.DirectoryService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	store := repository.NewProcessStore(components.DB)

	var snapshots cache.Cache[[]engine.ProcessTemplate] = cache.Noop[[]engine.ProcessTemplate]{}
	if cfg.Cache.Enabled {
		snapshots = cache.NewMemoryCache[[]engine.ProcessTemplate]("templates", cfg.Cache.Capacity, cfg.Cache.DefaultTTL, log)
	}
	catalog := service.NewCatalog(store, snapshots)

	rateLimiter := ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
	locker := service.NewRedisLocker(components.Redis, cfg.Process.LockTTL, log)
	events := service.NewEventStream(components.Redis, cfg.Process.EventStream, log)
	tracer := otel.Tracer(cfg.Service.Name)
	if components.Telemetry != nil {
		tracer = components.Telemetry.Tracer()
	}

	versioner := engine.NewVersioner(nil, engine.NewID)
	eng := engine.NewEngine(nil, engine.NewID)
	eng.TaskDueWindow = cfg.TaskDueWindow()

	processService := service.NewProcessService(store, catalog, versioner, locker, events, tracer, log)
	runService := service.NewRunService(
		store,
		catalog,
		eng,
		locker,
		events,
		rateLimiter,
		service.RunServiceOptions{
			StartRetries: cfg.Process.StartRetries,
			StartPolicy:  ratelimit.RunStartPolicy(cfg.Process.RunStartLimitPerMinute),
		},
		tracer,
		log,
	)
	directoryService := service.NewDirectoryService(store, log)

	return &Container{
		Components:       components,
		Store:            store,
		Cache:            snapshots,
		RateLimiter:      rateLimiter,
		Events:           events,
		ProcessService:   processService,
		RunService:       runService,
		DirectoryService: directoryService,
	}, nil
}

// Close releases resources owned by the container
func (c *Container) Close() error {
	return c.Cache.Close()
}
