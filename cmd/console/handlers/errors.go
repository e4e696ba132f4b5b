package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/opsconsole/console/cmd/console/service"
	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
)

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// statusFor maps service and engine errors to an HTTP status and a stable code
func statusFor(err error) (int, string) {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrProcessBusy):
		return http.StatusConflict, "process_busy"
	}

	code := engine.ErrorCode(err)
	switch code {
	case "empty_template", "unassigned_step", "step_missing", "orphaned_run":
		return http.StatusUnprocessableEntity, code
	case "stale_template_reference", "invalid_transition":
		return http.StatusConflict, code
	default:
		return http.StatusInternalServerError, code
	}
}

// respondError writes err as JSON. Internal errors are logged and their
// message is not exposed.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	status, code := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: code}

	var (
		unassigned *engine.UnassignedStepError
		stale      *engine.StaleTemplateError
		transition *engine.TransitionError
		limited    *service.RateLimitedError
	)
	switch {
	case errors.As(err, &unassigned):
		body.Details = map[string]interface{}{
			"step_id":       unassigned.StepID,
			"step_title":    unassigned.StepTitle,
			"assignee_type": unassigned.AssigneeType,
			"assignee_id":   unassigned.AssigneeID,
		}
	case errors.As(err, &stale):
		body.Details = map[string]interface{}{
			"base_version":   stale.Base,
			"latest_version": stale.Latest,
		}
	case errors.As(err, &transition):
		details := map[string]interface{}{"from": transition.From}
		if transition.Action != "" {
			details["action"] = transition.Action
		} else {
			details["to"] = transition.To
		}
		body.Details = details
	case errors.As(err, &limited):
		c.Response().Header().Set("Retry-After", strconv.FormatInt(limited.RetryAfterSeconds, 10))
		body.Details = map[string]interface{}{
			"limit":               limited.Limit,
			"window":              "60 seconds",
			"retry_after_seconds": limited.RetryAfterSeconds,
		}
	}

	if status == http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err)
		body.Error = "internal server error"
	}

	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: "invalid_input"})
}
