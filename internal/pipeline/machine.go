package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/ctr"
	"landing-ops/backend/internal/logging"
	"landing-ops/backend/internal/qc"
	"landing-ops/backend/internal/repository"
	"landing-ops/backend/internal/seo"
	"landing-ops/backend/internal/services"
	"landing-ops/backend/pkg/models"
)

const llmRetries = 3

// Exporter materializes an audited page and reports the artifact.
type Exporter interface {
	Export(runID string, page *models.Page) (*models.ExportArtifact, error)
}

// Machine drives runs through their lifecycle. It is the only component
// that mutates runs; everything it decides is re-derived from the store,
// never from client-supplied state.
type Machine struct {
	store    repository.RunStore
	gen      services.CopyGenerator
	checker  *qc.Checker
	auditor  *seo.Auditor
	fixer    *seo.Fixer
	analyzer *ctr.Analyzer
	exporter Exporter
	cfg      *config.Config
	log      *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine wires the state machine over its collaborators.
func NewMachine(store repository.RunStore, gen services.CopyGenerator, exporter Exporter, cfg *config.Config, log *logging.Logger) *Machine {
	return &Machine{
		store:    store,
		gen:      gen,
		checker:  qc.NewChecker(),
		auditor:  seo.NewAuditor(cfg.Audit),
		fixer:    seo.NewFixer(cfg.Audit),
		analyzer: ctr.NewAnalyzer(cfg.CTR.MinViews, cfg.CTR.Confidence),
		exporter: exporter,
		cfg:      cfg,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

// runLock returns the mutex serializing stage transitions for one run.
// Event appends do not take it; they are append-only and contention-free.
func (m *Machine) runLock(runID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[runID] = l
	}
	return l
}

// CreateRunInput is the payload for a new run.
type CreateRunInput struct {
	MetaTitle          string        `json:"meta_title"`
	MetaDescription    string        `json:"meta_description"`
	BodyDraft          string        `json:"body_draft"`
	PrimaryKeyword     string        `json:"primary_keyword"`
	SupportingKeywords []string      `json:"supporting_keywords"`
	Intent             models.Intent `json:"intent"`
	CanonicalURL       string        `json:"canonical_url"`
	CTA                string        `json:"cta"`
	BuyURL             string        `json:"buy_url"`
}

// CreateRun validates the input and persists a new run in CREATED.
func (m *Machine) CreateRun(ctx context.Context, in CreateRunInput) (*models.Run, error) {
	if strings.TrimSpace(in.MetaTitle) == "" {
		return nil, &ValidationError{Field: "meta_title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.PrimaryKeyword) == "" {
		return nil, &ValidationError{Field: "primary_keyword", Reason: "must not be empty"}
	}
	if in.Intent == "" {
		in.Intent = models.IntentPurchase
	}
	if in.Intent != models.IntentPurchase && in.Intent != models.IntentInfo {
		return nil, &ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown intent %q", in.Intent)}
	}

	var supporting []string
	for _, kw := range in.SupportingKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			supporting = append(supporting, kw)
		}
	}

	now := time.Now().UTC()
	run := &models.Run{
		ID:                 uuid.NewString(),
		Stage:              models.StageCreated,
		MetaTitle:          strings.TrimSpace(in.MetaTitle),
		MetaDescription:    strings.TrimSpace(in.MetaDescription),
		BodyDraft:          in.BodyDraft,
		PrimaryKeyword:     strings.TrimSpace(in.PrimaryKeyword),
		SupportingKeywords: supporting,
		Intent:             in.Intent,
		CanonicalURL:       strings.TrimSpace(in.CanonicalURL),
		CTA:                strings.TrimSpace(in.CTA),
		BuyURL:             strings.TrimSpace(in.BuyURL),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	m.logJob(ctx, run.ID, "create", "ok", now, map[string]any{"keyword": run.PrimaryKeyword})
	return run, nil
}

// GenerateVariants asks the copy generator for an A/B pack, screens each
// candidate for banned claims and stores the pair. Re-running replaces
// the previous pair; once a preview has happened the pair is frozen.
func (m *Machine) GenerateVariants(ctx context.Context, runID string) ([]*models.Variant, error) {
	started := time.Now().UTC()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Stage != models.StageCreated && run.Stage != models.StageGenerated {
		return nil, &StateError{Op: "generate", Stage: run.Stage, Allowed: "CREATED or GENERATED"}
	}

	// The provider call runs outside the run lock; the stage is
	// re-validated before anything is committed.
	pack, err := services.Retry(ctx, llmRetries, func(ctx context.Context) (*services.GeneratedPack, error) {
		return m.gen.Generate(ctx, services.GenerateRequest{
			PrimaryKeyword:     run.PrimaryKeyword,
			SupportingKeywords: run.SupportingKeywords,
			Intent:             run.Intent,
			MetaTitle:          run.MetaTitle,
			MetaDescription:    run.MetaDescription,
			BodyDraft:          run.BodyDraft,
		})
	})
	if err != nil {
		m.logJob(ctx, runID, "generate", "error", started, map[string]any{"error": err.Error()})
		return nil, err
	}

	lock := m.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err = m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Stage != models.StageCreated && run.Stage != models.StageGenerated {
		return nil, &StateError{Op: "generate", Stage: run.Stage, Allowed: "CREATED or GENERATED"}
	}

	now := time.Now().UTC()
	variants := []*models.Variant{
		m.buildVariant(runID, models.VariantA, pack.A, now),
		m.buildVariant(runID, models.VariantB, pack.B, now),
	}
	if err := m.store.ReplaceVariants(ctx, runID, variants); err != nil {
		return nil, err
	}

	run.Stage = models.StageGenerated
	run.UpdatedAt = now
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logJob(ctx, runID, "generate", "ok", started, map[string]any{
		"qc_a": string(variants[0].QC.Grade),
		"qc_b": string(variants[1].QC.Grade),
	})
	return variants, nil
}

func (m *Machine) buildVariant(runID string, label models.VariantLabel, draft services.VariantDraft, now time.Time) *models.Variant {
	v := &models.Variant{
		RunID:           runID,
		Label:           label,
		MetaTitle:       draft.MetaTitle,
		MetaDescription: draft.MetaDescription,
		HeroHeadline:    draft.HeroHeadline,
		HeroSub:         draft.HeroSub,
		CTA:             draft.CTA,
		FAQ:             draft.FAQ,
		CreatedAt:       now,
	}
	v.QC = m.checker.CheckVariant(v)
	return v
}

// Preview returns the run and its variant pair for the public preview
// page, moving a freshly generated run into PREVIEWED on first view.
func (m *Machine) Preview(ctx context.Context, runID string) (*models.Run, []*models.Variant, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if !run.Stage.AtLeast(models.StageGenerated) {
		return nil, nil, &StateError{Op: "preview", Stage: run.Stage, Allowed: "GENERATED or later"}
	}

	if run.Stage == models.StageGenerated {
		lock := m.runLock(runID)
		lock.Lock()
		run, err = m.store.GetRun(ctx, runID)
		if err == nil && run.Stage == models.StageGenerated {
			run.Stage = models.StagePreviewed
			run.UpdatedAt = time.Now().UTC()
			err = m.store.UpdateRun(ctx, run)
		}
		lock.Unlock()
		if err != nil {
			return nil, nil, err
		}
	}

	variants, err := m.store.ListVariants(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, variants, nil
}

// VariantPage assembles the preview document for one candidate.
func (m *Machine) VariantPage(run *models.Run, v *models.Variant) (*models.Page, error) {
	return variantPage(run, v)
}

// RecordEvent appends one traffic event. Events are immutable and never
// deduplicated; repeated views from one session are real traffic. The
// run lock is not taken, concurrent appends are safe by construction.
func (m *Machine) RecordEvent(ctx context.Context, runID string, variant models.VariantLabel, kind models.EventKind) error {
	if !variant.Valid() {
		return &ValidationError{Field: "variant", Reason: fmt.Sprintf("unknown variant %q", variant)}
	}
	if !kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown event kind %q", kind)}
	}

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Stage.AtLeast(models.StagePreviewed) {
		return &StateError{Op: "record_event", Stage: run.Stage, Allowed: "PREVIEWED or later"}
	}

	return m.store.AppendEvent(ctx, &models.Event{
		RunID:   runID,
		Variant: variant,
		Kind:    kind,
		At:      time.Now().UTC(),
	})
}

// SummarizeCTR recomputes the traffic summary from the full event set.
// The summary is derived state; calling it twice on the same events
// yields the same numbers. A previewed run with any traffic at all moves
// to RECOMMENDED, whatever the statistical outcome.
func (m *Machine) SummarizeCTR(ctx context.Context, runID string) (*models.CTRSummary, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Stage.AtLeast(models.StagePreviewed) {
		return nil, &StateError{Op: "summarize_ctr", Stage: run.Stage, Allowed: "PREVIEWED or later"}
	}

	events, err := m.store.ListEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	summary := m.analyzer.Summarize(events)

	if run.Stage == models.StagePreviewed && len(events) > 0 {
		lock := m.runLock(runID)
		lock.Lock()
		run, err = m.store.GetRun(ctx, runID)
		if err == nil && run.Stage == models.StagePreviewed {
			run.Stage = models.StageRecommended
			run.UpdatedAt = time.Now().UTC()
			err = m.store.UpdateRun(ctx, run)
		}
		lock.Unlock()
		if err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// Approve records the variant sign-off. choice is "A", "B" or
// "RECOMMENDED"; the latter re-derives the recommendation server-side
// and refuses when the data does not support one. Approvals are
// write-once: a second call is a conflict no matter what it picks.
func (m *Machine) Approve(ctx context.Context, runID, choice, approver string) (*models.Approval, error) {
	choice = strings.ToUpper(strings.TrimSpace(choice))

	lock := m.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Stage.AtLeast(models.StageApproved) {
		return nil, &ConflictError{Op: "approve", Reason: "run already has an approval"}
	}
	if run.Stage != models.StageRecommended {
		return nil, &StateError{Op: "approve", Stage: run.Stage, Allowed: "RECOMMENDED"}
	}

	var label models.VariantLabel
	method := "manual"
	switch choice {
	case "A":
		label = models.VariantA
	case "B":
		label = models.VariantB
	case "RECOMMENDED":
		events, err := m.store.ListEvents(ctx, runID)
		if err != nil {
			return nil, err
		}
		summary := m.analyzer.Summarize(events)
		if summary.Recommended == "" {
			return nil, &ValidationError{Field: "choice",
				Reason: fmt.Sprintf("no recommendation available (%s); pick A or B explicitly", summary.Outcome)}
		}
		label = summary.Recommended
		method = "recommended"
	default:
		return nil, &ValidationError{Field: "choice", Reason: "must be A, B or RECOMMENDED"}
	}

	variants, err := m.store.ListVariants(ctx, runID)
	if err != nil {
		return nil, err
	}
	var chosen *models.Variant
	for _, v := range variants {
		if v.Label == label {
			chosen = v
			break
		}
	}
	if chosen == nil {
		return nil, &ValidationError{Field: "choice", Reason: fmt.Sprintf("variant %s does not exist", label)}
	}
	if chosen.QC != nil && chosen.QC.Grade == models.VerdictFail {
		return nil, &ApprovalBlockedError{Variant: label, Hits: chosen.QC.Hits}
	}

	approval := &models.Approval{
		RunID:      runID,
		Variant:    label,
		Approver:   strings.TrimSpace(approver),
		Method:     method,
		ApprovedAt: time.Now().UTC(),
	}
	if err := m.store.CreateApproval(ctx, approval); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, &ConflictError{Op: "approve", Reason: "run already has an approval"}
		}
		return nil, err
	}

	run.Stage = models.StageApproved
	run.UpdatedAt = approval.ApprovedAt
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logJob(ctx, runID, "approve", "ok", approval.ApprovedAt, map[string]any{
		"variant": string(label), "method": method,
	})
	return approval, nil
}

// Audit evaluates the current page snapshot and appends the result to
// the run's audit history. Auditing is repeatable; each pass gets the
// next sequence number and only the newest one governs the export gate.
func (m *Machine) Audit(ctx context.Context, runID string) (*models.AuditResult, error) {
	started := time.Now().UTC()

	lock := m.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Stage.AtLeast(models.StageApproved) || run.Stage == models.StageExported {
		return nil, &StateError{Op: "audit", Stage: run.Stage, Allowed: "APPROVED, AUDITED or FIX_LOOP"}
	}

	page, err := m.snapshot(ctx, run)
	if err != nil {
		return nil, err
	}

	result := m.auditor.Audit(page, run.PrimaryKeyword, run.SupportingKeywords, run.Intent)
	result.RunID = runID
	result.AuditedAt = time.Now().UTC()
	if err := m.store.AppendAuditResult(ctx, result); err != nil {
		return nil, err
	}

	run.Stage = models.StageAudited
	run.UpdatedAt = result.AuditedAt
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logJob(ctx, runID, "audit", "ok", started, map[string]any{
		"verdict": string(result.Overall), "score": result.Score, "seq": result.Seq,
	})
	return result, nil
}

// Fix runs one repair attempt: deterministic rule fixes first, then an
// LLM rewrite if FAIL findings survive them, then a fresh audit of the
// repaired page. Each attempt consumes fix budget whether or not it
// reaches PASS; once the budget is spent the run needs manual edits.
func (m *Machine) Fix(ctx context.Context, runID string) (*models.AuditResult, error) {
	started := time.Now().UTC()

	lock := m.runLock(runID)
	lock.Lock()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if run.Stage != models.StageAudited && run.Stage != models.StageFixLoop {
		lock.Unlock()
		return nil, &StateError{Op: "fix", Stage: run.Stage, Allowed: "AUDITED"}
	}
	latest, err := m.store.LatestAuditResult(ctx, runID)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &StateError{Op: "fix", Stage: run.Stage, Allowed: "a completed audit"}
		}
		return nil, err
	}
	if latest.Overall == models.VerdictPass {
		lock.Unlock()
		return nil, &ConflictError{Op: "fix", Reason: "latest audit already passed; nothing to fix"}
	}
	if run.FixAttempts >= m.cfg.Fix.MaxAttempts {
		lock.Unlock()
		return nil, &FixExhaustedError{Attempts: run.FixAttempts, Budget: m.cfg.Fix.MaxAttempts, Findings: latest.Findings}
	}

	run.Stage = models.StageFixLoop
	run.FixAttempts++
	run.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateRun(ctx, run); err != nil {
		lock.Unlock()
		return nil, err
	}
	page, err := m.snapshot(ctx, run)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	canonical := fmt.Sprintf("%s/r/%s", m.cfg.Server.BaseURL, runID)
	fixed := m.fixer.Apply(page, run.PrimaryKeyword, run.SupportingKeywords, run.Intent, canonical)
	interim := m.auditor.Audit(fixed, run.PrimaryKeyword, run.SupportingKeywords, run.Intent)

	// Rule fixes clear every deterministic finding; anything still at
	// FAIL needs a real rewrite. The provider call happens outside the
	// run lock.
	if fails := interim.FailFindings(); len(fails) > 0 && m.gen != nil {
		rewritten, err := services.Retry(ctx, llmRetries, func(ctx context.Context) (*models.Page, error) {
			return m.gen.Rewrite(ctx, services.RewriteRequest{
				Page:               fixed,
				Findings:           fails,
				PrimaryKeyword:     run.PrimaryKeyword,
				SupportingKeywords: run.SupportingKeywords,
				Intent:             run.Intent,
			})
		})
		if err != nil {
			m.logJob(ctx, runID, "fix", "error", started, map[string]any{"error": err.Error()})
		} else {
			// The rewrite may reintroduce rule-level issues; run the
			// deterministic pass over it once more.
			fixed = m.fixer.Apply(rewritten, run.PrimaryKeyword, run.SupportingKeywords, run.Intent, canonical)
		}
	}

	lock.Lock()
	defer lock.Unlock()

	run, err = m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Stage != models.StageFixLoop {
		return nil, &ConflictError{Op: "fix", Reason: fmt.Sprintf("run moved to %s during the fix attempt", run.Stage)}
	}

	result := m.auditor.Audit(fixed, run.PrimaryKeyword, run.SupportingKeywords, run.Intent)
	result.RunID = runID
	result.AuditedAt = time.Now().UTC()
	if err := m.store.AppendAuditResult(ctx, result); err != nil {
		return nil, err
	}

	run.FixedPage = fixed
	run.Stage = models.StageAudited
	run.UpdatedAt = result.AuditedAt
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logJob(ctx, runID, "fix", "ok", started, map[string]any{
		"attempt": run.FixAttempts, "verdict": string(result.Overall), "score": result.Score,
	})
	return result, nil
}

// Export materializes the page as HTML. The gate re-reads the persisted
// audit history under the run lock: only a latest verdict of PASS
// exports, whatever the client believes. Exporting twice returns the
// existing artifact unchanged.
func (m *Machine) Export(ctx context.Context, runID string) (*models.ExportArtifact, error) {
	started := time.Now().UTC()

	lock := m.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Stage == models.StageExported {
		return m.store.GetExportArtifact(ctx, runID)
	}
	if run.Stage != models.StageAudited {
		return nil, &StateError{Op: "export", Stage: run.Stage, Allowed: "AUDITED"}
	}

	latest, err := m.store.LatestAuditResult(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &StateError{Op: "export", Stage: run.Stage, Allowed: "a completed audit"}
		}
		return nil, err
	}
	if latest.Overall != models.VerdictPass {
		return nil, &ExportBlockedError{Verdict: latest.Overall, Findings: latest.Findings}
	}

	page, err := m.snapshot(ctx, run)
	if err != nil {
		return nil, err
	}
	artifact, err := m.exporter.Export(runID, page)
	if err != nil {
		m.logJob(ctx, runID, "export", "error", started, map[string]any{"error": err.Error()})
		return nil, err
	}
	if err := m.store.CreateExportArtifact(ctx, artifact); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, &ConflictError{Op: "export", Reason: "run already has an export artifact"}
		}
		return nil, err
	}

	run.Stage = models.StageExported
	run.UpdatedAt = artifact.CreatedAt
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logJob(ctx, runID, "export", "ok", started, map[string]any{
		"path": artifact.Path, "sha256": artifact.SHA256, "bytes": artifact.Bytes,
	})
	return artifact, nil
}

// AutoExportReport describes one auto-export pass: the audit it started
// from, the audit it ended on, the fix attempts spent between them and
// the artifact when the gate opened.
type AutoExportReport struct {
	Before   *models.AuditResult    `json:"before"`
	After    *models.AuditResult    `json:"after"`
	Attempts int                    `json:"attempts"`
	Artifact *models.ExportArtifact `json:"artifact"`
}

// AutoExport chains audit, fix attempts and export in one call. It is
// pure composition: each step is the same operation a caller would issue
// by hand, so the export gate and the fix budget hold exactly as they do
// for the step-by-step flow. A run that cannot reach PASS within its
// remaining budget fails with FixExhaustedError carrying the residue.
func (m *Machine) AutoExport(ctx context.Context, runID string) (*AutoExportReport, error) {
	started := time.Now().UTC()

	result, err := m.Audit(ctx, runID)
	if err != nil {
		return nil, err
	}
	report := &AutoExportReport{Before: result, After: result}

	for result.Overall != models.VerdictPass {
		if result, err = m.Fix(ctx, runID); err != nil {
			return nil, err
		}
		report.Attempts++
		report.After = result
	}

	artifact, err := m.Export(ctx, runID)
	if err != nil {
		return nil, err
	}
	report.Artifact = artifact

	m.logJob(ctx, runID, "auto_export", "ok", started, map[string]any{
		"attempts": report.Attempts,
		"before":   string(report.Before.Overall),
		"after":    string(report.After.Overall),
		"sha256":   artifact.SHA256,
	})
	return report, nil
}

// snapshot assembles the page the auditor, fixer and exporter all see.
func (m *Machine) snapshot(ctx context.Context, run *models.Run) (*models.Page, error) {
	var approved *models.Variant
	approval, err := m.store.GetApproval(ctx, run.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if approval != nil {
		variants, err := m.store.ListVariants(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range variants {
			if v.Label == approval.Variant {
				approved = v
				break
			}
		}
	}
	return buildPage(run, approved)
}

func (m *Machine) logJob(ctx context.Context, runID, job, status string, started time.Time, detail map[string]any) {
	entry := &models.JobLog{
		RunID:     runID,
		Job:       job,
		Status:    status,
		ElapsedMS: time.Since(started).Milliseconds(),
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := m.store.AppendJobLog(ctx, entry); err != nil {
		m.log.Warn("job log append failed for run %s: %v", runID, err)
	}
}
