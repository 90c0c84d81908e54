package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/repository"
	"landing-ops/backend/internal/services"
	"landing-ops/backend/pkg/models"
)

func isProviderError(err error) bool {
	var pe *services.ProviderError
	return errors.As(err, &pe)
}

// ProblemDetails is an RFC 7807 Problem Details response body.
type ProblemDetails struct {
	Type     string           `json:"type"`
	Title    string           `json:"title"`
	Status   int              `json:"status"`
	Detail   string           `json:"detail"`
	Instance string           `json:"instance,omitempty"`
	Findings []models.Finding `json:"findings,omitempty"`
}

// problem maps a pipeline error onto its HTTP status and writes the
// RFC 7807 body. Every rejection the state machine can produce has a
// fixed status and a stable type slug so clients can branch on either.
func problem(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	title := "internal error"
	slug := "internal"
	var findings []models.Finding

	var (
		validation *pipeline.ValidationError
		state      *pipeline.StateError
		conflict   *pipeline.ConflictError
		approval   *pipeline.ApprovalBlockedError
		blocked    *pipeline.ExportBlockedError
		exhausted  *pipeline.FixExhaustedError
	)
	switch {
	case errors.As(err, &validation):
		status, title, slug = http.StatusBadRequest, "validation failed", "validation"
	case errors.As(err, &state):
		status, title, slug = http.StatusConflict, "operation out of order", "state"
	case errors.As(err, &conflict):
		status, title, slug = http.StatusConflict, "conflict", "conflict"
	case errors.As(err, &approval):
		status, title, slug = http.StatusConflict, "approval blocked", "approval-blocked"
	case errors.As(err, &blocked):
		status, title, slug = http.StatusConflict, "export blocked", "export-blocked"
		findings = blocked.Findings
	case errors.As(err, &exhausted):
		status, title, slug = http.StatusUnprocessableEntity, "fix budget exhausted", "fix-exhausted"
		findings = exhausted.Findings
	case isProviderError(err):
		status, title, slug = http.StatusBadGateway, "copy provider unavailable", "provider-unavailable"
	case errors.Is(err, repository.ErrNotFound):
		status, title, slug = http.StatusNotFound, "not found", "not-found"
	case errors.Is(err, repository.ErrAlreadyExists):
		status, title, slug = http.StatusConflict, "conflict", "conflict"
	}

	body := ProblemDetails{
		Type:     "/problems/" + slug,
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: c.Request().URL.Path,
		Findings: findings,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, body)
}
