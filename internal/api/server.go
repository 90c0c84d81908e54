// Package api contains the HTTP handlers for the landing-ops service.
package api

import (
	"github.com/labstack/echo/v4"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/export"
	"landing-ops/backend/internal/logging"
	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/repository"
)

// Server holds the dependencies for the API server.
type Server struct {
	Machine  *pipeline.Machine
	Store    repository.RunStore
	Renderer *export.Renderer
	Cfg      *config.Config
	Log      *logging.Logger
}

// NewServer creates a new Server.
func NewServer(machine *pipeline.Machine, store repository.RunStore, renderer *export.Renderer, cfg *config.Config, log *logging.Logger) *Server {
	return &Server{Machine: machine, Store: store, Renderer: renderer, Cfg: cfg, Log: log}
}

// RegisterRoutes mounts every handler on the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	// Public preview surface: no auth, crawl-safe paths.
	e.GET("/r/:id", s.PreviewRun)

	api := e.Group("/api")
	api.POST("/runs", s.CreateRun)
	api.GET("/runs", s.ListRuns)
	api.GET("/runs/:id", s.GetRun)
	api.POST("/runs/:id/generate", s.GenerateVariants)
	api.POST("/runs/:id/events", s.RecordEvent)
	api.GET("/runs/:id/ctr", s.SummarizeCTR)
	api.POST("/runs/:id/approve", s.Approve)
	api.POST("/runs/:id/audit", s.Audit)
	api.GET("/runs/:id/audits", s.AuditHistory)
	api.POST("/runs/:id/fix", s.Fix)
	api.POST("/runs/:id/export", s.Export)
	api.POST("/runs/:id/auto-export", s.AutoExport)
	api.GET("/runs/:id/export/file", s.ExportFile)
	api.GET("/runs/:id/export/open", s.ExportOpen)

	admin := e.Group("/admin", s.RequireAdminToken)
	admin.GET("/runs/:id/logs", s.JobLogs)
}
