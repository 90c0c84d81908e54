// Package models defines the domain records for the landing-ops service.
package models

import "time"

// Stage is the lifecycle position of a Run. Stages only advance forward,
// except for the Audit -> FixLoop -> Audit retry cycle.
type Stage string

const (
	StageCreated     Stage = "CREATED"
	StageGenerated   Stage = "GENERATED"
	StagePreviewed   Stage = "PREVIEWED"
	StageRecommended Stage = "RECOMMENDED"
	StageApproved    Stage = "APPROVED"
	StageAudited     Stage = "AUDITED"
	StageFixLoop     Stage = "FIX_LOOP"
	StageExported    Stage = "EXPORTED"
)

// stageOrder ranks stages for "at or past" checks. FixLoop ranks with
// Audited since the two alternate without regressing upstream stages.
var stageOrder = map[Stage]int{
	StageCreated:     0,
	StageGenerated:   1,
	StagePreviewed:   2,
	StageRecommended: 3,
	StageApproved:    4,
	StageAudited:     5,
	StageFixLoop:     5,
	StageExported:    6,
}

// AtLeast reports whether s is at or past min in the run lifecycle.
func (s Stage) AtLeast(min Stage) bool {
	return stageOrder[s] >= stageOrder[min]
}

// Intent classifies the landing page goal.
type Intent string

const (
	IntentPurchase Intent = "purchase"
	IntentInfo     Intent = "info"
)

// VariantLabel identifies one of the two generated copy candidates.
type VariantLabel string

const (
	VariantA VariantLabel = "A"
	VariantB VariantLabel = "B"
)

// Valid reports whether the label is one of the two known variants.
func (v VariantLabel) Valid() bool { return v == VariantA || v == VariantB }

// Verdict is the outcome of a QC or audit evaluation.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictWarn Verdict = "WARN"
	VerdictFail Verdict = "FAIL"
)

// Severity grades a single audit finding.
type Severity string

const (
	SeverityFail Severity = "FAIL"
	SeverityWarn Severity = "WARN"
	SeverityInfo Severity = "INFO"
)

// EventKind is the traffic event type recorded during previews.
type EventKind string

const (
	EventView  EventKind = "view"
	EventClick EventKind = "click"
)

// Valid reports whether the kind is a known traffic event.
func (k EventKind) Valid() bool { return k == EventView || k == EventClick }

// Run is one end-to-end tracked unit of work from input to export. The
// state machine is the sole mutator of a Run; all other components read it.
type Run struct {
	ID                 string    `json:"id" db:"id"`
	Stage              Stage     `json:"stage" db:"stage"`
	MetaTitle          string    `json:"meta_title" db:"meta_title"`
	MetaDescription    string    `json:"meta_description" db:"meta_description"`
	BodyDraft          string    `json:"body_draft" db:"body_draft"`
	PrimaryKeyword     string    `json:"primary_keyword" db:"primary_keyword"`
	SupportingKeywords []string  `json:"supporting_keywords" db:"supporting_keywords"`
	Intent             Intent    `json:"intent" db:"intent"`
	CanonicalURL       string    `json:"canonical_url" db:"canonical_url"`
	CTA                string    `json:"cta" db:"cta"`
	BuyURL             string    `json:"buy_url,omitempty" db:"buy_url"`
	FixedPage          *Page     `json:"fixed_page,omitempty" db:"fixed_page"`
	FixAttempts        int       `json:"fix_attempts" db:"fix_attempts"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// FAQItem is one question/answer pair on the landing page.
type FAQItem struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// QCResult is the compliance verdict attached to a generated variant.
// Flagged content is annotated, never silently blocked.
type QCResult struct {
	Grade Verdict  `json:"grade"`
	Hits  []string `json:"hits,omitempty"`
	Notes []string `json:"notes,omitempty"`
}

// Variant is one generated copy candidate (A or B) for a Run.
type Variant struct {
	RunID           string       `json:"run_id" db:"run_id"`
	Label           VariantLabel `json:"label" db:"label"`
	MetaTitle       string       `json:"meta_title" db:"meta_title"`
	MetaDescription string       `json:"meta_description" db:"meta_description"`
	HeroHeadline    string       `json:"hero_headline" db:"hero_headline"`
	HeroSub         string       `json:"hero_sub" db:"hero_sub"`
	CTA             string       `json:"cta" db:"cta"`
	FAQ             []FAQItem    `json:"faq" db:"faq"`
	QC              *QCResult    `json:"qc,omitempty" db:"qc"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// Event is one append-only traffic record for a Run+Variant. Events are
// never mutated or deduplicated; duplicates are real traffic.
type Event struct {
	ID      int64        `json:"id" db:"id"`
	RunID   string       `json:"run_id" db:"run_id"`
	Variant VariantLabel `json:"variant" db:"variant"`
	Kind    EventKind    `json:"kind" db:"kind"`
	At      time.Time    `json:"at" db:"at"`
}

// Outcome is the recommendation result of a CTR summary.
type Outcome string

const (
	OutcomeRecommendA       Outcome = "recommend-a"
	OutcomeRecommendB       Outcome = "recommend-b"
	OutcomeInsufficientData Outcome = "insufficient-data"
	OutcomeNoSignificance   Outcome = "no-significant-difference"
)

// VariantStats aggregates one variant's traffic.
type VariantStats struct {
	Views  int     `json:"views"`
	Clicks int     `json:"clicks"`
	CTR    float64 `json:"ctr"`
}

// CTRSummary is derived from a Run's events; it is never stored as
// authoritative state.
type CTRSummary struct {
	A           VariantStats `json:"a"`
	B           VariantStats `json:"b"`
	Uplift      float64      `json:"uplift"`
	Z           float64      `json:"z"`
	PValue      float64      `json:"p_value"`
	MinViews    int          `json:"min_views_required"`
	Confidence  float64      `json:"confidence"`
	Outcome     Outcome      `json:"outcome"`
	Recommended VariantLabel `json:"recommended_variant,omitempty"`
}

// Approval records the human sign-off on a variant. Write-once per run.
type Approval struct {
	RunID      string       `json:"run_id" db:"run_id"`
	Variant    VariantLabel `json:"variant" db:"variant"`
	Approver   string       `json:"approver" db:"approver"`
	Method     string       `json:"method" db:"method"` // "manual" or "recommended"
	ApprovedAt time.Time    `json:"approved_at" db:"approved_at"`
}

// Finding is one audit rule result.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	FixHint  string   `json:"fix_hint,omitempty"`
}

// AuditSignals are the raw measurements behind the findings.
type AuditSignals struct {
	TitleLen       int     `json:"title_len"`
	DescLen        int     `json:"desc_len"`
	H1Count        int     `json:"h1_count"`
	H2Count        int     `json:"h2_count"`
	WordCount      int     `json:"word_count"`
	KeywordInTitle bool    `json:"keyword_in_title"`
	KeywordInH1    bool    `json:"keyword_in_h1"`
	KeywordInLead  bool    `json:"keyword_in_lead"`
	SupportingHits int     `json:"supporting_kw_hits"`
	FAQCount       int     `json:"faq_count"`
	HasFAQJSONLD   bool    `json:"has_faq_jsonld"`
	KeywordDensity float64 `json:"keyword_density_pct"`
	HeadingSkips   int     `json:"heading_skips"`
}

// AuditResult is one audit of a Run's page. History is retained per run;
// only the latest result governs the export gate.
type AuditResult struct {
	RunID     string       `json:"run_id" db:"run_id"`
	Seq       int          `json:"seq" db:"seq"`
	Overall   Verdict      `json:"overall" db:"overall"`
	Score     int          `json:"score" db:"score"`
	Findings  []Finding    `json:"findings" db:"findings"`
	Signals   AuditSignals `json:"signals" db:"signals"`
	AuditedAt time.Time    `json:"audited_at" db:"audited_at"`
}

// FailFindings returns the findings with severity FAIL.
func (r *AuditResult) FailFindings() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityFail {
			out = append(out, f)
		}
	}
	return out
}

// ExportArtifact records a materialized HTML export. It can exist only for
// a run whose latest audit verdict was PASS at export time.
type ExportArtifact struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Path      string    `json:"path" db:"path"`
	SHA256    string    `json:"sha256" db:"sha256"`
	Bytes     int       `json:"bytes" db:"bytes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Page is the assembled landing page snapshot fed to the auditor, fixer
// and exporter: run inputs overlaid with the approved variant and, when
// present, the latest fixed page.
type Page struct {
	MetaTitle       string    `json:"meta_title"`
	MetaDescription string    `json:"meta_description"`
	CanonicalURL    string    `json:"canonical_url"`
	OGTitle         string    `json:"og_title"`
	OGDescription   string    `json:"og_description"`
	H1              string    `json:"h1"`
	BodyHTML        string    `json:"body_html"`
	CTA             string    `json:"cta"`
	BuyURL          string    `json:"buy_url,omitempty"`
	FAQ             []FAQItem `json:"faq"`
}

// JobLog is one operation timeline entry for the admin console.
type JobLog struct {
	ID        int64          `json:"id" db:"id"`
	RunID     string         `json:"run_id" db:"run_id"`
	Job       string         `json:"job" db:"job"`
	Status    string         `json:"status" db:"status"`
	ElapsedMS int64          `json:"elapsed_ms" db:"elapsed_ms"`
	Detail    map[string]any `json:"detail,omitempty" db:"detail"`
	At        time.Time      `json:"at" db:"at"`
}
