package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/container"
	"github.com/opsconsole/console/cmd/console/handlers"
)

// RegisterDirectoryRoutes registers org directory and activity feed routes
func RegisterDirectoryRoutes(api *echo.Group, c *container.Container) {
	h := handlers.NewDirectoryHandler(c.DirectoryService, c.Events, c.Components.Logger)

	org := api.Group("/org")
	{
		org.GET("", h.GetDirectory)              // GET /api/v1/org
		org.PUT("/positions/:id", h.PutPosition) // PUT /api/v1/org/positions/pos-legal
		org.PUT("/users/:id", h.PutUser)         // PUT /api/v1/org/users/u-42
	}

	api.GET("/events", h.ListEvents) // GET /api/v1/events?after=0&limit=50
}
