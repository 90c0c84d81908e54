package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"landing-ops/backend/internal/pipeline"
)

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// Health reports liveness.
// (GET /healthz)
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "landing-ops",
	})
}

// RequireAdminToken guards the admin surface with a shared token. When
// no token is configured the surface is disabled outright rather than
// left open.
func (s *Server) RequireAdminToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := s.Cfg.Server.AdminToken
		if token == "" {
			return echo.NewHTTPError(http.StatusForbidden, "admin surface is not configured")
		}
		got := c.Request().Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
		}
		return next(c)
	}
}

// JobLogs returns the newest operation timeline entries for a run.
// (GET /admin/runs/:id/logs?limit=50)
func (s *Server) JobLogs(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return problem(c, &pipeline.ValidationError{Field: "limit", Reason: "must be an integer between 1 and 500"})
		}
		limit = n
	}

	logs, err := s.Store.ListJobLogs(ctx, c.Param("id"), limit)
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}
