package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/export"
	"landing-ops/backend/internal/logging"
	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/repository"
	"landing-ops/backend/internal/services"
	"landing-ops/backend/pkg/models"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.Server.ExportDir = t.TempDir()
	cfg.Server.AdminToken = "sekrit"
	cfg.CTR.MinViews = 20
	cfg.CTR.Confidence = 0.95
	cfg.Fix.MaxAttempts = 3
	cfg.Audit = config.AuditConfig{
		TitleMin: 30, TitleMax: 60,
		DescMin: 70, DescMax: 160,
		MinH2: 3, MinWords: 350, MinFAQ: 3,
		MaxKeywordDensity: 3.0,
	}

	store := repository.NewMemoryRunStore()
	renderer := export.NewRenderer(cfg.Server.ExportDir, cfg.Audit.MinFAQ)
	logger := logging.NewLogger()
	machine := pipeline.NewMachine(store, services.MockGenerator{}, renderer, cfg, logger)

	e := echo.New()
	NewServer(machine, store, renderer, cfg, logger).RegisterRoutes(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createRunRequest() pipeline.CreateRunInput {
	para := strings.Repeat("Steady habits and daily sunscreen do more for skin than any single product ever will on its own. ", 9)
	return pipeline.CreateRunInput{
		MetaTitle:       "Niacinamide Serum Guide for Balanced Daily Skin",
		MetaDescription: "A practical look at niacinamide serum: how to layer it and what to expect over weeks of consistent use.",
		BodyDraft: "Niacinamide serum works best inside a consistent routine built around even skin tone and pore care.\n\n" +
			"## How it works\n\n" + para + "\n\n## How to use it\n\n" + para + "\n\n## What to expect\n\n" + para +
			" Results may vary between individuals.\n",
		PrimaryKeyword:     "niacinamide serum",
		SupportingKeywords: []string{"even skin tone", "pore care"},
		Intent:             models.IntentPurchase,
		CanonicalURL:       "https://example.com/guides/niacinamide-serum",
		CTA:                "Shop the serum",
		BuyURL:             "https://example.com/products/serum",
	}
}

func createRun(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/api/runs", createRunRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.NotEmpty(t, run.ID)
	return run.ID
}

func TestEndToEndOverHTTP(t *testing.T) {
	e := newTestServer(t)
	id := createRun(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var variants []*models.Variant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variants))
	require.Len(t, variants, 2)

	// Public preview renders variant B and marks the run previewed.
	req := httptest.NewRequest(http.MethodGet, "/r/"+id+"?variant=B", nil)
	html := httptest.NewRecorder()
	e.ServeHTTP(html, req)
	require.Equal(t, http.StatusOK, html.Code)
	assert.Contains(t, html.Body.String(), "<!doctype html>")
	assert.Contains(t, html.Body.String(), variants[1].HeroHeadline)

	for i := 0; i < 30; i++ {
		for _, variant := range []models.VariantLabel{models.VariantA, models.VariantB} {
			rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events",
				map[string]string{"variant": string(variant), "kind": "view"})
			require.Equal(t, http.StatusAccepted, rec.Code)
		}
	}
	for i := 0; i < 12; i++ {
		rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events",
			map[string]string{"variant": "B", "kind": "click"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	for i := 0; i < 3; i++ {
		rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events",
			map[string]string{"variant": "A", "kind": "click"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/runs/"+id+"/ctr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.CTRSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, models.OutcomeRecommendB, summary.Outcome)

	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/approve",
		map[string]string{"choice": "RECOMMENDED", "approver": "casey"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit models.AuditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	require.Equal(t, models.VerdictPass, audit.Overall, "findings: %v", audit.Findings)

	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var artifact models.ExportArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
	assert.NotEmpty(t, artifact.SHA256)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+id+"/export/file", nil)
	file := httptest.NewRecorder()
	e.ServeHTTP(file, req)
	require.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, artifact.SHA256, file.Header().Get("X-Export-SHA256"))
	assert.Contains(t, file.Body.String(), "<!doctype html>")

	rec = doJSON(t, e, http.MethodGet, "/api/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, models.StageExported, detail.Run.Stage)
	assert.NotNil(t, detail.Approval)
	assert.NotNil(t, detail.Artifact)
	assert.Equal(t, "http://localhost:8080/r/"+id, detail.PreviewURL)
}

func TestProblemResponses(t *testing.T) {
	e := newTestServer(t)

	// Unknown run.
	rec := doJSON(t, e, http.MethodGet, "/api/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var prob ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	assert.Equal(t, http.StatusNotFound, prob.Status)
	assert.Equal(t, "/problems/not-found", prob.Type)
	assert.Equal(t, "/api/runs/nope", prob.Instance)

	// Bad input.
	rec = doJSON(t, e, http.MethodPost, "/api/runs", map[string]string{"meta_title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	assert.Equal(t, "/problems/validation", prob.Type)

	// Operation out of order: audit before approval.
	id := createRun(t, e)
	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/audit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	assert.Equal(t, "operation out of order", prob.Title)
	assert.Equal(t, "/problems/state", prob.Type)

	// Events before preview.
	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events",
		map[string]string{"variant": "A", "kind": "view"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Invalid event payload.
	req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil)
	html := httptest.NewRecorder()
	e.ServeHTTP(html, req)
	require.Equal(t, http.StatusOK, html.Code)
	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events",
		map[string]string{"variant": "C", "kind": "view"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportBlockedReturnsFindings(t *testing.T) {
	e := newTestServer(t)

	in := createRunRequest()
	in.CanonicalURL = ""
	rec := doJSON(t, e, http.MethodPost, "/api/runs", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	id := run.ID

	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/generate", nil).Code)
	req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
	for i := 0; i < 25; i++ {
		doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events", map[string]string{"variant": "A", "kind": "view"})
		doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events", map[string]string{"variant": "B", "kind": "view"})
	}
	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodGet, "/api/runs/"+id+"/ctr", nil).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/approve",
		map[string]string{"choice": "A", "approver": "casey"}).Code)
	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/audit", nil).Code)

	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/export", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var prob ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	assert.Equal(t, "export blocked", prob.Title)
	assert.Equal(t, "/problems/export-blocked", prob.Type)
	assert.NotEmpty(t, prob.Findings)

	// No artifact to download.
	rec = doJSON(t, e, http.MethodGet, "/api/runs/"+id+"/export/file", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutoExportOverHTTP(t *testing.T) {
	e := newTestServer(t)

	in := createRunRequest()
	in.BodyDraft += "\nThis medical grade formula cures acne.\n"
	rec := doJSON(t, e, http.MethodPost, "/api/runs", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	id := run.ID

	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/generate", nil).Code)
	req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
	for i := 0; i < 25; i++ {
		doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events", map[string]string{"variant": "A", "kind": "view"})
		doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/events", map[string]string{"variant": "B", "kind": "view"})
	}
	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodGet, "/api/runs/"+id+"/ctr", nil).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/approve",
		map[string]string{"choice": "A", "approver": "casey"}).Code)

	rec = doJSON(t, e, http.MethodPost, "/api/runs/"+id+"/auto-export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report pipeline.AutoExportReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.VerdictFail, report.Before.Overall)
	assert.Equal(t, models.VerdictPass, report.After.Overall)
	assert.Equal(t, 1, report.Attempts)
	require.NotNil(t, report.Artifact)

	// The artifact is viewable inline.
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+id+"/export/open", nil)
	view := httptest.NewRecorder()
	e.ServeHTTP(view, req)
	require.Equal(t, http.StatusOK, view.Code)
	assert.Equal(t, report.Artifact.SHA256, view.Header().Get("X-Export-SHA256"))
	assert.Contains(t, view.Body.String(), "<!doctype html>")
	assert.Contains(t, view.Header().Get(echo.HeaderContentType), "text/html")
}

func TestAdminSurfaceRequiresToken(t *testing.T) {
	e := newTestServer(t)
	id := createRun(t, e)

	req := httptest.NewRequest(http.MethodGet, "/admin/runs/"+id+"/logs", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/runs/"+id+"/logs", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/runs/"+id+"/logs", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []*models.JobLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.NotEmpty(t, logs)
	assert.Equal(t, "create", logs[0].Job)
}

func TestListRunsFilters(t *testing.T) {
	e := newTestServer(t)
	id := createRun(t, e)

	rec := doJSON(t, e, http.MethodGet, "/api/runs?q=niacinamide", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rec = doJSON(t, e, http.MethodGet, "/api/runs?stage=EXPORTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)

	rec = doJSON(t, e, http.MethodGet, "/api/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestPreviewUnknownVariant(t *testing.T) {
	e := newTestServer(t)
	id := createRun(t, e)
	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodPost, fmt.Sprintf("/api/runs/%s/generate", id), nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/r/"+id+"?variant=X", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
