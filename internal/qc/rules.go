// Package qc screens generated copy for claims the brand must not publish.
// Flagged text is annotated for the reviewer, never silently blocked.
package qc

import (
	"regexp"
	"strings"

	"landing-ops/backend/pkg/models"
)

// bannedTerm pairs the display form of a banned phrase with a
// word-bounded matcher, so "cure" never matches inside "secure".
type bannedTerm struct {
	term string
	re   *regexp.Regexp
}

func terms(words ...string) []bannedTerm {
	out := make([]bannedTerm, 0, len(words))
	for _, w := range words {
		out = append(out, bannedTerm{term: w, re: TermPattern(w)})
	}
	return out
}

// TermPattern compiles a case-insensitive matcher for term, anchored at
// word boundaries where the term itself starts or ends with a word
// character ("100%" must still match before a space).
func TermPattern(term string) *regexp.Regexp {
	pattern := `(?i)`
	if isWordByte(term[0]) {
		pattern += `\b`
	}
	pattern += regexp.QuoteMeta(term)
	if isWordByte(term[len(term)-1]) {
		pattern += `\b`
	}
	return regexp.MustCompile(pattern)
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// bannedFail are medical / absolute-efficacy claims. Any hit fails QC
// outright: these read as drug claims on a cosmetics landing page.
var bannedFail = terms(
	"cure",
	"cures",
	"treats eczema",
	"treats acne",
	"medical grade",
	"no side effects",
	"100%",
	"doctor recommended",
)

// bannedWarn are overclaim phrases that are risky but reviewable.
var bannedWarn = terms(
	"instantly",
	"guaranteed",
	"miracle",
	"perfect skin",
	"overnight results",
	"works for everyone",
)

// Checker scans copy against the banned-claim lists.
type Checker struct{}

// NewChecker creates a new Checker.
func NewChecker() *Checker { return &Checker{} }

// Check scans text and returns a QC verdict with the matched terms.
// Matching is case-insensitive substring search; the lists are short
// enough that nothing smarter is warranted.
func (c *Checker) Check(text string) *models.QCResult {
	var failHits, warnHits []string
	for _, w := range bannedFail {
		if w.re.MatchString(text) {
			failHits = append(failHits, w.term)
		}
	}
	for _, w := range bannedWarn {
		if w.re.MatchString(text) {
			warnHits = append(warnHits, w.term)
		}
	}

	switch {
	case len(failHits) > 0:
		return &models.QCResult{
			Grade: models.VerdictFail,
			Hits:  failHits,
			Notes: []string{"remove medical or absolute-efficacy claims"},
		}
	case len(warnHits) > 0:
		return &models.QCResult{
			Grade: models.VerdictWarn,
			Hits:  warnHits,
			Notes: []string{"soften absolute or overclaim phrasing"},
		}
	default:
		return &models.QCResult{Grade: models.VerdictPass}
	}
}

// CheckVariant scans the reviewer-visible text fields of a variant as one
// block, the same way the copy will read on the page.
func (c *Checker) CheckVariant(v *models.Variant) *models.QCResult {
	parts := []string{v.MetaTitle, v.MetaDescription, v.HeroHeadline, v.HeroSub, v.CTA}
	for _, item := range v.FAQ {
		parts = append(parts, item.Question, item.Answer)
	}
	return c.Check(strings.Join(parts, "\n"))
}
