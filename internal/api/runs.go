package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/repository"
	"landing-ops/backend/pkg/models"
)

// RunDetail is the composite view returned for a single run.
type RunDetail struct {
	Run         *models.Run            `json:"run"`
	Variants    []*models.Variant      `json:"variants,omitempty"`
	Approval    *models.Approval       `json:"approval,omitempty"`
	LatestAudit *models.AuditResult    `json:"latest_audit,omitempty"`
	Artifact    *models.ExportArtifact `json:"artifact,omitempty"`
	PreviewURL  string                 `json:"preview_url"`
}

// CreateRun creates a new run from the landing page inputs.
// (POST /api/runs)
func (s *Server) CreateRun(c echo.Context) error {
	ctx := c.Request().Context()

	var in pipeline.CreateRunInput
	if err := c.Bind(&in); err != nil {
		return problem(c, &pipeline.ValidationError{Field: "body", Reason: err.Error()})
	}

	run, err := s.Machine.CreateRun(ctx, in)
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

// ListRuns returns runs newest first, filtered by free-text query and stage.
// (GET /api/runs)
func (s *Server) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	filter := repository.ListFilter{
		Query: strings.TrimSpace(c.QueryParam("q")),
		Stage: models.Stage(strings.ToUpper(strings.TrimSpace(c.QueryParam("stage")))),
		Limit: 50,
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return problem(c, &pipeline.ValidationError{Field: "limit", Reason: "must be an integer between 1 and 500"})
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return problem(c, &pipeline.ValidationError{Field: "offset", Reason: "must be a non-negative integer"})
		}
		filter.Offset = n
	}

	runs, err := s.Store.ListRuns(ctx, filter)
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns the composite state of one run.
// (GET /api/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	run, err := s.Store.GetRun(ctx, id)
	if err != nil {
		return problem(c, err)
	}

	detail := RunDetail{
		Run:        run,
		PreviewURL: s.Cfg.Server.BaseURL + "/r/" + run.ID,
	}
	if variants, err := s.Store.ListVariants(ctx, id); err == nil {
		detail.Variants = variants
	}
	if approval, err := s.Store.GetApproval(ctx, id); err == nil {
		detail.Approval = approval
	}
	if latest, err := s.Store.LatestAuditResult(ctx, id); err == nil {
		detail.LatestAudit = latest
	}
	if artifact, err := s.Store.GetExportArtifact(ctx, id); err == nil {
		detail.Artifact = artifact
	}
	return c.JSON(http.StatusOK, detail)
}

// GenerateVariants produces the A/B copy pack for a run.
// (POST /api/runs/:id/generate)
func (s *Server) GenerateVariants(c echo.Context) error {
	ctx := c.Request().Context()

	variants, err := s.Machine.GenerateVariants(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, variants)
}

// PreviewRun renders the public preview page for one variant. The first
// preview of a generated run moves it to PREVIEWED.
// (GET /r/:id?variant=A)
func (s *Server) PreviewRun(c echo.Context) error {
	ctx := c.Request().Context()

	label := models.VariantLabel(strings.ToUpper(strings.TrimSpace(c.QueryParam("variant"))))
	if label == "" {
		label = models.VariantA
	}
	if !label.Valid() {
		return problem(c, &pipeline.ValidationError{Field: "variant", Reason: "must be A or B"})
	}

	run, variants, err := s.Machine.Preview(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	var chosen *models.Variant
	for _, v := range variants {
		if v.Label == label {
			chosen = v
			break
		}
	}
	if chosen == nil {
		return problem(c, repository.ErrNotFound)
	}

	page, err := s.Machine.VariantPage(run, chosen)
	if err != nil {
		return problem(c, err)
	}
	doc, err := s.Renderer.Render(page)
	if err != nil {
		return problem(c, err)
	}
	return c.HTMLBlob(http.StatusOK, doc)
}

type eventRequest struct {
	Variant models.VariantLabel `json:"variant"`
	Kind    models.EventKind    `json:"kind"`
}

// RecordEvent appends one view or click event for a variant.
// (POST /api/runs/:id/events)
func (s *Server) RecordEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, &pipeline.ValidationError{Field: "body", Reason: err.Error()})
	}
	if err := s.Machine.RecordEvent(ctx, c.Param("id"), req.Variant, req.Kind); err != nil {
		return problem(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// SummarizeCTR recomputes the run's traffic summary and recommendation.
// (GET /api/runs/:id/ctr)
func (s *Server) SummarizeCTR(c echo.Context) error {
	ctx := c.Request().Context()

	summary, err := s.Machine.SummarizeCTR(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

type approveRequest struct {
	Choice   string `json:"choice"`
	Approver string `json:"approver"`
}

// Approve records the write-once variant sign-off.
// (POST /api/runs/:id/approve)
func (s *Server) Approve(c echo.Context) error {
	ctx := c.Request().Context()

	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, &pipeline.ValidationError{Field: "body", Reason: err.Error()})
	}
	approval, err := s.Machine.Approve(ctx, c.Param("id"), req.Choice, req.Approver)
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusCreated, approval)
}

// Audit runs the SEO audit over the current page snapshot.
// (POST /api/runs/:id/audit)
func (s *Server) Audit(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := s.Machine.Audit(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// AuditHistory returns every audit of the run, oldest first.
// (GET /api/runs/:id/audits)
func (s *Server) AuditHistory(c echo.Context) error {
	ctx := c.Request().Context()

	results, err := s.Store.ListAuditResults(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// Fix runs one repair attempt against the latest audit findings.
// (POST /api/runs/:id/fix)
func (s *Server) Fix(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := s.Machine.Fix(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Export materializes the audited page as HTML, gated on a PASS verdict.
// (POST /api/runs/:id/export)
func (s *Server) Export(c echo.Context) error {
	ctx := c.Request().Context()

	artifact, err := s.Machine.Export(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, artifact)
}

// AutoExport chains audit, fix attempts within the remaining budget and
// the gated export in one call, reporting the before/after audits.
// (POST /api/runs/:id/auto-export)
func (s *Server) AutoExport(c echo.Context) error {
	ctx := c.Request().Context()

	report, err := s.Machine.AutoExport(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ExportFile serves the exported HTML document.
// (GET /api/runs/:id/export/file)
func (s *Server) ExportFile(c echo.Context) error {
	ctx := c.Request().Context()

	artifact, err := s.Store.GetExportArtifact(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	c.Response().Header().Set("X-Export-SHA256", artifact.SHA256)
	c.Response().Header().Set("Last-Modified", artifact.CreatedAt.UTC().Format(time.RFC1123))
	return c.File(artifact.Path)
}

// ExportOpen serves the exported document inline for a browser view.
// (GET /api/runs/:id/export/open)
func (s *Server) ExportOpen(c echo.Context) error {
	ctx := c.Request().Context()

	artifact, err := s.Store.GetExportArtifact(ctx, c.Param("id"))
	if err != nil {
		return problem(c, err)
	}
	doc, err := os.ReadFile(artifact.Path)
	if err != nil {
		return problem(c, err)
	}
	c.Response().Header().Set("X-Export-SHA256", artifact.SHA256)
	return c.HTMLBlob(http.StatusOK, doc)
}
