// Package seo audits and repairs landing page drafts against the house
// content standards. The auditor is a pure function of page content; the
// export gate depends on that determinism.
package seo

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/qc"
	"landing-ops/backend/pkg/models"
)

// bannedClaims are phrases that read as drug or absolute-efficacy claims.
// Any occurrence in title, description or body fails the audit. Matching
// uses the same word-bounded patterns as the QC screen.
var bannedClaims = func() []struct {
	term string
	re   *regexp.Regexp
} {
	words := []string{
		"cure",
		"treats eczema",
		"treats acne",
		"medical grade",
		"no side effects",
		"100%",
		"doctor recommended",
	}
	out := make([]struct {
		term string
		re   *regexp.Regexp
	}, 0, len(words))
	for _, w := range words {
		out = append(out, struct {
			term string
			re   *regexp.Regexp
		}{w, qc.TermPattern(w)})
	}
	return out
}()

// disclaimerMarkers indicate a usage caveat is already present.
var disclaimerMarkers = []string{
	"results may vary",
	"patch test",
	"individual skin",
	"consult a professional",
}

// Auditor evaluates a page snapshot rule by rule.
type Auditor struct {
	cfg config.AuditConfig
}

// NewAuditor creates a new Auditor with the given bounds.
func NewAuditor(cfg config.AuditConfig) *Auditor {
	return &Auditor{cfg: cfg}
}

// Audit runs every rule against the page and returns the verdict. The
// result depends only on the arguments: identical input always yields an
// identical AuditResult.
func (a *Auditor) Audit(page *models.Page, primaryKeyword string, supporting []string, intent models.Intent) *models.AuditResult {
	title := strings.TrimSpace(page.MetaTitle)
	desc := strings.TrimSpace(page.MetaDescription)
	// Lengths are display lengths, so runes, not bytes: multi-byte copy
	// must measure the same as ASCII.
	titleLen := utf8.RuneCountInString(title)
	descLen := utf8.RuneCountInString(desc)
	h1 := strings.TrimSpace(page.H1)
	body := page.BodyHTML
	bodyText := stripTags(body)

	keyword := strings.TrimSpace(primaryKeyword)
	normKeyword := norm(keyword)

	h1Base := 0
	h1Count := countHeadings(body, 1)
	if h1 != "" {
		// The H1 field renders as the page's top heading, on top of any
		// <h1> already in the body.
		h1Count++
		h1Base = 1
	}
	h2Count := countHeadings(body, 2)
	headingSkips := countHeadingSkips(body, h1Base)

	words := wordCount(bodyText)
	normBody := norm(bodyText)

	keywordInTitle := normKeyword != "" && strings.Contains(norm(title), normKeyword)
	keywordInH1 := normKeyword != "" && strings.Contains(norm(h1), normKeyword)
	keywordInLead := normKeyword != "" && strings.Contains(norm(firstWords(bodyText, 120)), normKeyword)

	supportingHits := 0
	var supportingGiven []string
	for _, sk := range supporting {
		sk = strings.TrimSpace(sk)
		if sk == "" {
			continue
		}
		supportingGiven = append(supportingGiven, sk)
		if strings.Contains(normBody, norm(sk)) {
			supportingHits++
		}
	}

	density := 0.0
	if normKeyword != "" && words > 0 {
		density = float64(strings.Count(normBody, normKeyword)) / float64(words) * 100.0
	}

	faqCount := 0
	invalidFAQ := 0
	for _, item := range page.FAQ {
		if strings.TrimSpace(item.Question) != "" && strings.TrimSpace(item.Answer) != "" {
			faqCount++
		} else {
			invalidFAQ++
		}
	}

	var findings []models.Finding
	penalty := 0
	add := func(ruleID string, severity models.Severity, message, fixHint string, p int) {
		findings = append(findings, models.Finding{RuleID: ruleID, Severity: severity, Message: message, FixHint: fixHint})
		penalty += p
	}

	// Title and description rules.
	if title == "" {
		add("T001", models.SeverityFail, "meta title is empty",
			fmt.Sprintf("write a %d-%d character title containing the primary keyword", a.cfg.TitleMin, a.cfg.TitleMax), 25)
	} else if titleLen < a.cfg.TitleMin || titleLen > a.cfg.TitleMax {
		add("T002", models.SeverityWarn,
			fmt.Sprintf("meta title length %d is outside %d-%d", titleLen, a.cfg.TitleMin, a.cfg.TitleMax),
			"pad a short title with the USP and keyword, or trim filler from a long one", 10)
	}

	if desc == "" {
		add("T003", models.SeverityFail, "meta description is empty",
			fmt.Sprintf("write a %d-%d character description covering benefit and CTA without overclaiming", a.cfg.DescMin, a.cfg.DescMax), 25)
	} else if descLen < a.cfg.DescMin || descLen > a.cfg.DescMax {
		add("T004", models.SeverityWarn,
			fmt.Sprintf("meta description length %d is outside %d-%d", descLen, a.cfg.DescMin, a.cfg.DescMax),
			"expand a thin description or keep only the essentials of a long one", 10)
	}

	if strings.TrimSpace(page.CanonicalURL) == "" {
		add("T005", models.SeverityWarn, "canonical URL is missing",
			"pin the canonical once the publish URL is known; a placeholder is acceptable", 10)
	}

	if h1Count != 1 {
		add("T006", models.SeverityFail, fmt.Sprintf("page has %d top-level headings, want exactly 1", h1Count),
			"merge into a single H1 carrying the main message and primary keyword", 25)
	}

	if strings.TrimSpace(page.OGTitle) == "" || strings.TrimSpace(page.OGDescription) == "" {
		add("T007", models.SeverityInfo, "OpenGraph title/description missing",
			"reuse the meta title and description for the OG tags", 2)
	}

	// Content rules.
	if keyword != "" && !keywordInTitle {
		add("C008", models.SeverityFail, "primary keyword missing from meta title",
			"work the primary keyword into the title naturally", 25)
	}

	if keyword != "" && !keywordInH1 {
		add("C001", models.SeverityFail, "primary keyword missing from H1",
			"rephrase the H1 to include the primary keyword", 25)
	}

	if keyword != "" && !keywordInLead {
		add("C002", models.SeverityWarn, "primary keyword absent from the first 120 words",
			"rewrite the lead paragraph to mention the primary keyword once", 10)
	}

	if len(supportingGiven) > 0 && supportingHits < 2 {
		add("C003", models.SeverityWarn, fmt.Sprintf("supporting keyword coverage too low (hits=%d)", supportingHits),
			"weave at least two supporting keywords into the sections", 10)
	}

	if h2Count < a.cfg.MinH2 {
		add("C004", models.SeverityFail, fmt.Sprintf("only %d H2 sections, want at least %d", h2Count, a.cfg.MinH2),
			"add sections matching the intent (ingredients, usage, routine, FAQ)", 25)
	}

	if words < a.cfg.MinWords {
		add("C005", models.SeverityWarn, fmt.Sprintf("body is thin (%d words)", words),
			fmt.Sprintf("expand sections to at least %d words", a.cfg.MinWords), 10)
	}

	if headingSkips > 0 {
		add("C006", models.SeverityFail, fmt.Sprintf("heading hierarchy skips a level %d time(s)", headingSkips),
			"step heading levels down one at a time (H2 before H3)", 25)
	}

	if keyword != "" && density > a.cfg.MaxKeywordDensity {
		add("C007", models.SeverityFail, fmt.Sprintf("primary keyword repeated too often (density %.2f%%)", density),
			"vary phrasing with synonyms to bring density under the limit", 25)
	}

	// Editorial risk rules.
	combined := title + "\n" + desc + "\n" + bodyText
	for _, w := range bannedClaims {
		if w.re.MatchString(combined) {
			add("E002", models.SeverityFail, fmt.Sprintf("banned claim detected: %q", w.term),
				"remove or soften efficacy and medical claims", 25)
			break
		}
	}

	hasDisclaimer := false
	for _, m := range disclaimerMarkers {
		if strings.Contains(strings.ToLower(bodyText), m) {
			hasDisclaimer = true
			break
		}
	}
	if !hasDisclaimer {
		add("E001", models.SeverityWarn, "no usage caveat present",
			"add a one-line individual-results / patch-test note at the bottom", 10)
	}

	// Structured data rules.
	if faqCount < a.cfg.MinFAQ {
		add("S001", models.SeverityWarn, fmt.Sprintf("too few FAQ entries (%d)", faqCount),
			fmt.Sprintf("add %d-5 questions customers actually ask", a.cfg.MinFAQ), 10)
	}
	if invalidFAQ > 0 {
		add("S002", models.SeverityWarn, fmt.Sprintf("%d FAQ entries missing a question or answer", invalidFAQ),
			"complete or drop the partial entries so the FAQ JSON-LD stays valid", 10)
	}

	score := 100 - penalty
	if score < 0 {
		score = 0
	}

	overall := models.VerdictPass
	for _, f := range findings {
		if f.Severity == models.SeverityFail {
			overall = models.VerdictFail
			break
		}
		if f.Severity == models.SeverityWarn {
			overall = models.VerdictWarn
		}
	}

	return &models.AuditResult{
		Overall:  overall,
		Score:    score,
		Findings: findings,
		Signals: models.AuditSignals{
			TitleLen:       titleLen,
			DescLen:        descLen,
			H1Count:        h1Count,
			H2Count:        h2Count,
			WordCount:      words,
			KeywordInTitle: keywordInTitle,
			KeywordInH1:    keywordInH1,
			KeywordInLead:  keywordInLead,
			SupportingHits: supportingHits,
			FAQCount:       faqCount,
			HasFAQJSONLD:   faqCount >= a.cfg.MinFAQ,
			KeywordDensity: density,
			HeadingSkips:   headingSkips,
		},
	}
}
