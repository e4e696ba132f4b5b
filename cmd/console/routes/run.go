package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/container"
	"github.com/opsconsole/console/cmd/console/handlers"
)

// RegisterRunRoutes registers run routes
func RegisterRunRoutes(api *echo.Group, c *container.Container) {
	h := handlers.NewRunHandler(c.RunService, c.Components.Logger)

	runs := api.Group("/runs")
	{
		runs.GET("", h.ListRuns)                  // GET /api/v1/runs?hide_completed=true
		runs.GET("/:id", h.GetRun)                // GET /api/v1/runs/{run_id}
		runs.POST("/:id/status", h.TransitionRun) // POST /api/v1/runs/{run_id}/status
		runs.POST("/:id/advance", h.AdvanceRun)   // POST /api/v1/runs/{run_id}/advance
	}
}
