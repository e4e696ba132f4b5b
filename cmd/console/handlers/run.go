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

// RunService is what RunHandler needs from the run use cases
type RunService interface {
	Start(ctx context.Context, actor, processID string) (engine.StartResult, error)
	Progress(ctx context.Context, runID string) (service.RunDetail, error)
	Dashboard(ctx context.Context, filter engine.RunFilter) ([]engine.RunView, error)
	Transition(ctx context.Context, actor, runID string, to engine.RunStatus) (engine.ProcessRun, error)
	Advance(ctx context.Context, actor, runID string) (engine.AdvanceResult, error)
}

// RunHandler handles run requests
type RunHandler struct {
	runs RunService
	log  *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunService, log *logger.Logger) *RunHandler {
	return &RunHandler{runs: runs, log: log}
}

// TransitionRequest is the body of POST /runs/:id/status
type TransitionRequest struct {
	Status engine.RunStatus `json:"status"`
}

// StartRun starts a run of the latest version of a process
// POST /api/v1/processes/:id/runs
func (h *RunHandler) StartRun(c echo.Context) error {
	res, err := h.runs.Start(c.Request().Context(), middleware.GetUsername(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"run":  res.Run,
		"task": res.Task,
	})
}

// ListRuns is the cross-process dashboard
// GET /api/v1/runs?hide_completed=true&status=active&process_id=p1&filter=run.task_count>1
func (h *RunHandler) ListRuns(c echo.Context) error {
	hide, _ := strconv.ParseBool(c.QueryParam("hide_completed"))
	filter := engine.RunFilter{
		HideCompleted: hide,
		Status:        engine.RunStatus(c.QueryParam("status")),
		ProcessID:     c.QueryParam("process_id"),
		Expression:    c.QueryParam("filter"),
	}

	views, err := h.runs.Dashboard(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  views,
		"count": len(views),
	})
}

// GetRun returns a run with per-step progress
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	detail, err := h.runs.Progress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// TransitionRun changes a run's status
// POST /api/v1/runs/:id/status
func (h *RunHandler) TransitionRun(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch req.Status {
	case engine.RunActive, engine.RunPaused, engine.RunCompleted:
	default:
		return badRequest(c, "status must be one of active, paused, completed")
	}

	run, err := h.runs.Transition(c.Request().Context(), middleware.GetUsername(c), c.Param("id"), req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, run)
}

// AdvanceRun completes the current step
// POST /api/v1/runs/:id/advance
func (h *RunHandler) AdvanceRun(c echo.Context) error {
	res, err := h.runs.Advance(c.Request().Context(), middleware.GetUsername(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}

	body := map[string]interface{}{"run": res.Run}
	if res.Task != nil {
		body["task"] = res.Task
	}
	return c.JSON(http.StatusOK, body)
}
