package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opsconsole/console/cmd/console/container"
	consolemw "github.com/opsconsole/console/cmd/console/middleware"
	"github.com/opsconsole/console/cmd/console/repository"
	"github.com/opsconsole/console/cmd/console/routes"
	"github.com/opsconsole/console/common/bootstrap"
	"github.com/opsconsole/console/common/db"
	commonmw "github.com/opsconsole/console/common/middleware"
	"github.com/opsconsole/console/common/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

const serviceName = "console"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Business process console: versioned process templates and their runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []bootstrap.Option
			if migrate {
				opts = append(opts, bootstrap.WithDBInitHook(func(d *db.DB) error {
					return repository.Migrate(d.Config().ConnString(), false)
				}))
			}
			return serve(ctx, opts...)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := bootstrap.Setup(cmd.Context(), serviceName,
				bootstrap.WithoutDB(),
				bootstrap.WithoutRedis(),
				bootstrap.WithoutTelemetry(),
			)
			if err != nil {
				return fmt.Errorf("failed to bootstrap %s: %w", serviceName, err)
			}
			defer components.Shutdown(cmd.Context())

			if err := repository.Migrate(components.Config.DatabaseURL(), down); err != nil {
				return err
			}
			components.Logger.Info("migrations applied", "down", down)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

func serve(ctx context.Context, opts ...bootstrap.Option) error {
	// Bootstrap common components (DB, Redis, logger, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName, opts...)
	if err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", serviceName, err)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}
	defer serviceContainer.Close()

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	return startServer(ctx, e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(requestLogger(c))
}

// requestLogger logs each request through the service logger
func requestLogger(c *container.Container) echo.MiddlewareFunc {
	log := c.Components.Logger
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(ec echo.Context, v middleware.RequestLoggerValues) error {
			log.WithContext(ec.Request().Context()).Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			)
			return nil
		},
	})
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config.Service

	api := e.Group("/api/v1")
	api.Use(commonmw.GlobalRateLimitMiddleware(c.RateLimiter, cfg.GlobalRateLimit, cfg.InternalSecret))
	api.Use(consolemw.ExtractUsername())
	api.Use(consolemw.RequireUser())
	api.Use(commonmw.UserRateLimitMiddleware(c.RateLimiter, cfg.UserRateLimit, cfg.InternalSecret))

	routes.RegisterProcessRoutes(api, c)
	routes.RegisterRunRoutes(api, c)
	routes.RegisterDirectoryRoutes(api, c)
}

// startServer runs the Echo handler until ctx is cancelled, then drains
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) error {
	srv := server.New(serviceName, components.Config.Service.Port, e, components.Logger)
	return srv.Run(ctx)
}
