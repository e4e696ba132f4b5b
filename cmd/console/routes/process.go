package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/container"
	"github.com/opsconsole/console/cmd/console/handlers"
)

// RegisterProcessRoutes registers process template routes
func RegisterProcessRoutes(api *echo.Group, c *container.Container) {
	h := handlers.NewProcessHandler(c.ProcessService, c.Components.Logger)
	r := handlers.NewRunHandler(c.RunService, c.Components.Logger)

	p := api.Group("/processes")
	{
		p.GET("", h.ListProcesses)                           // GET /api/v1/processes?archived=true
		p.POST("", h.CreateProcess)                          // POST /api/v1/processes
		p.GET("/:id", h.GetProcess)                          // GET /api/v1/processes/onboarding
		p.PUT("/:id", h.UpdateProcess)                       // PUT /api/v1/processes/onboarding
		p.PATCH("/:id", h.PatchProcess)                      // PATCH /api/v1/processes/onboarding?base_version=3
		p.DELETE("/:id", h.DeleteProcess)                    // DELETE /api/v1/processes/onboarding
		p.GET("/:id/versions", h.ListVersions)               // GET /api/v1/processes/onboarding/versions
		p.GET("/:id/versions/:version", h.GetProcessVersion) // GET /api/v1/processes/onboarding/versions/2
		p.GET("/:id/runs", h.ListProcessRuns)                // GET /api/v1/processes/onboarding/runs
		p.POST("/:id/runs", r.StartRun)                      // POST /api/v1/processes/onboarding/runs
	}
}
