package services

import (
	"context"
	"fmt"
	"strings"

	"landing-ops/backend/pkg/models"
)

// MockGenerator is a deterministic stand-in for local runs and tests. It
// writes templated copy from the run inputs and never calls out.
type MockGenerator struct{}

func (MockGenerator) Generate(_ context.Context, req GenerateRequest) (*GeneratedPack, error) {
	kw := strings.TrimSpace(req.PrimaryKeyword)
	if kw == "" {
		kw = "skincare"
	}
	display := titleCase(kw)

	benefit := "brighter-looking skin"
	if req.Intent == models.IntentInfo {
		benefit = "a routine you actually understand"
	}

	faq := []models.FAQItem{
		{Question: fmt.Sprintf("How often should I use %s?", kw),
			Answer: "Start with once daily and adjust to how your skin responds. Results may vary, so patch test first."},
		{Question: "Is it suitable for sensitive skin?",
			Answer: "The formula is fragrance-free and designed to be gentle, but individual skin differs."},
		{Question: "When will I see a difference?",
			Answer: "Most people notice changes after several weeks of consistent use."},
	}

	pack := &GeneratedPack{
		A: VariantDraft{
			MetaTitle:       fit(fmt.Sprintf("%s | Gentle Daily Care That Delivers", display), 30, 60),
			MetaDescription: fit(fmt.Sprintf("Discover how %s fits into a simple routine for %s. Honest guidance, no hype.", kw, benefit), 70, 160),
			HeroHeadline:    fmt.Sprintf("%s, made simple", display),
			HeroSub:         fmt.Sprintf("Everything you need to know before adding %s to your routine.", kw),
			CTA:             "Shop the range",
			FAQ:             faq,
		},
		B: VariantDraft{
			MetaTitle:       fit(fmt.Sprintf("Tired of Guesswork? %s Explained", display), 30, 60),
			MetaDescription: fit(fmt.Sprintf("Confused about %s? Here is what it does, who it suits and how to use it for %s.", kw, benefit), 70, 160),
			HeroHeadline:    fmt.Sprintf("Stop guessing about %s", kw),
			HeroSub:         "Clear answers to the questions everyone asks, minus the marketing noise.",
			CTA:             "Find your match",
			FAQ:             faq,
		},
		Notes: []string{"mock generator output"},
	}
	return pack, nil
}

// Rewrite returns a copy of the page untouched. The rule-based fix pass
// runs before any rewrite and already clears every deterministic finding,
// so the mock has nothing left to improve.
func (MockGenerator) Rewrite(_ context.Context, req RewriteRequest) (*models.Page, error) {
	out := *req.Page
	out.FAQ = append([]models.FAQItem(nil), req.Page.FAQ...)
	return &out, nil
}

// titleCase uppercases the first letter of each ASCII word.
func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		if p[0] >= 'a' && p[0] <= 'z' {
			parts[i] = string(p[0]-'a'+'A') + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// fit extends a short string with a neutral suffix and trims an overlong
// one at a word boundary.
func fit(s string, min, max int) string {
	const suffix = " - Skincare Guide"
	for len(s) < min {
		s += suffix
	}
	if len(s) > max {
		cut := s[:max]
		if i := strings.LastIndex(cut, " "); i > min {
			cut = cut[:i]
		}
		s = strings.TrimRight(cut, " -|,")
	}
	return s
}
