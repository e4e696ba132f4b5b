package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/middleware"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
)

// ProcessService is what ProcessHandler needs from the process use cases
type ProcessService interface {
	List(ctx context.Context, archived bool) ([]engine.ProcessTemplate, error)
	Get(ctx context.Context, processID string) (engine.ProcessTemplate, error)
	GetVersion(ctx context.Context, processID string, version int) (engine.ProcessTemplate, error)
	Versions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error)
	Runs(ctx context.Context, processID string) ([]engine.ProcessRun, error)
	Create(ctx context.Context, actor string, edit engine.TemplateEdit) (engine.ProcessTemplate, error)
	Update(ctx context.Context, actor, processID string, baseVersion int, edit engine.TemplateEdit) (engine.ProcessTemplate, error)
	Patch(ctx context.Context, actor, processID string, baseVersion int, patchJSON []byte) (engine.ProcessTemplate, error)
	Delete(ctx context.Context, actor, processID string) error
}

// ProcessHandler handles process template requests
type ProcessHandler struct {
	processes ProcessService
	log       *logger.Logger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(processes ProcessService, log *logger.Logger) *ProcessHandler {
	return &ProcessHandler{processes: processes, log: log}
}

// UpdateProcessRequest is the body of PUT /processes/:id
type UpdateProcessRequest struct {
	BaseVersion int `json:"base_version"`
	engine.TemplateEdit
}

// ListProcesses lists the latest version of each process
// GET /api/v1/processes?archived=true
func (h *ProcessHandler) ListProcesses(c echo.Context) error {
	archived, _ := strconv.ParseBool(c.QueryParam("archived"))

	templates, err := h.processes.List(c.Request().Context(), archived)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"processes": templates,
		"count":     len(templates),
	})
}

// GetProcess returns the latest version of a process
// GET /api/v1/processes/:id
func (h *ProcessHandler) GetProcess(c echo.Context) error {
	t, err := h.processes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ListVersions returns every version of a process
// GET /api/v1/processes/:id/versions
func (h *ProcessHandler) ListVersions(c echo.Context) error {
	versions, err := h.processes.Versions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"process_id": c.Param("id"),
		"versions":   versions,
		"count":      len(versions),
	})
}

// GetProcessVersion returns one version of a process
// GET /api/v1/processes/:id/versions/:version
func (h *ProcessHandler) GetProcessVersion(c echo.Context) error {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return badRequest(c, "version must be a positive integer")
	}

	t, err := h.processes.GetVersion(c.Request().Context(), c.Param("id"), version)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// CreateProcess creates version 1 of a process
// POST /api/v1/processes
func (h *ProcessHandler) CreateProcess(c echo.Context) error {
	var edit engine.TemplateEdit
	if err := c.Bind(&edit); err != nil {
		return badRequest(c, "invalid request body")
	}

	t, err := h.processes.Create(c.Request().Context(), middleware.GetUsername(c), edit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// UpdateProcess saves an edit made against base_version
// PUT /api/v1/processes/:id
func (h *ProcessHandler) UpdateProcess(c echo.Context) error {
	var req UpdateProcessRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BaseVersion < 1 {
		return badRequest(c, "base_version is required")
	}

	t, err := h.processes.Update(c.Request().Context(), middleware.GetUsername(c), c.Param("id"), req.BaseVersion, req.TemplateEdit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// PatchProcess applies a JSON Patch to the editable fields
// PATCH /api/v1/processes/:id?base_version=3
func (h *ProcessHandler) PatchProcess(c echo.Context) error {
	base, err := strconv.Atoi(c.QueryParam("base_version"))
	if err != nil || base < 1 {
		return badRequest(c, "base_version query parameter is required")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "failed to read request body")
	}

	t, err := h.processes.Patch(c.Request().Context(), middleware.GetUsername(c), c.Param("id"), base, body)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteProcess deletes every version of a process
// DELETE /api/v1/processes/:id
func (h *ProcessHandler) DeleteProcess(c echo.Context) error {
	if err := h.processes.Delete(c.Request().Context(), middleware.GetUsername(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListProcessRuns lists every run of a process across its versions
// GET /api/v1/processes/:id/runs
func (h *ProcessHandler) ListProcessRuns(c echo.Context) error {
	runs, err := h.processes.Runs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"process_id": c.Param("id"),
		"runs":       runs,
		"count":      len(runs),
	})
}
