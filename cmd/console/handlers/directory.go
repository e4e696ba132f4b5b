package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/middleware"
	"github.com/opsconsole/console/cmd/console/service"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
)

// DirectoryService is what DirectoryHandler needs
type DirectoryService interface {
	Get(ctx context.Context) (service.Directory, error)
	SavePosition(ctx context.Context, actor string, p engine.OrgPosition) error
	SaveUser(ctx context.Context, actor string, u engine.User) error
}

// EventFeed reads the process event stream
type EventFeed interface {
	Read(ctx context.Context, after string, limit int64) ([]service.Event, error)
}

// DirectoryHandler handles org directory and activity feed requests
type DirectoryHandler struct {
	directory DirectoryService
	events    EventFeed
	log       *logger.Logger
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(directory DirectoryService, events EventFeed, log *logger.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, events: events, log: log}
}

// GetDirectory lists positions and users
// GET /api/v1/org
func (h *DirectoryHandler) GetDirectory(c echo.Context) error {
	dir, err := h.directory.Get(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dir)
}

// PutPosition creates or updates a position
// PUT /api/v1/org/positions/:id
func (h *DirectoryHandler) PutPosition(c echo.Context) error {
	var p engine.OrgPosition
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	p.ID = c.Param("id")

	if err := h.directory.SavePosition(c.Request().Context(), middleware.GetUsername(c), p); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// PutUser creates or updates a user
// PUT /api/v1/org/users/:id
func (h *DirectoryHandler) PutUser(c echo.Context) error {
	var u engine.User
	if err := c.Bind(&u); err != nil {
		return badRequest(c, "invalid request body")
	}
	u.ID = c.Param("id")

	if err := h.directory.SaveUser(c.Request().Context(), middleware.GetUsername(c), u); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// ListEvents reads the activity feed
// GET /api/v1/events?after=1700000000000-0&limit=50
func (h *DirectoryHandler) ListEvents(c echo.Context) error {
	limit := int64(50)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > 500 {
			return badRequest(c, "limit must be between 1 and 500")
		}
		limit = n
	}

	events, err := h.events.Read(c.Request().Context(), c.QueryParam("after"), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	next := c.QueryParam("after")
	if len(events) > 0 {
		next = events[len(events)-1].ID
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"next":   next,
	})
}
