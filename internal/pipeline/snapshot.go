package pipeline

import (
	"fmt"

	"landing-ops/backend/internal/export"
	"landing-ops/backend/pkg/models"
)

// buildPage assembles the audit/export snapshot: run inputs, overlaid
// with the approved variant when one exists, with the body draft rendered
// to HTML. A stored fixed page wins over everything; it already is the
// result of this assembly plus repairs.
func buildPage(run *models.Run, approved *models.Variant) (*models.Page, error) {
	if run.FixedPage != nil {
		return clonePage(run.FixedPage), nil
	}

	body, err := export.MarkdownHTML(run.BodyDraft)
	if err != nil {
		return nil, fmt.Errorf("render body draft: %w", err)
	}

	page := &models.Page{
		MetaTitle:       run.MetaTitle,
		MetaDescription: run.MetaDescription,
		CanonicalURL:    run.CanonicalURL,
		H1:              run.MetaTitle,
		BodyHTML:        body,
		CTA:             run.CTA,
		BuyURL:          run.BuyURL,
	}

	if approved != nil {
		page.MetaTitle = approved.MetaTitle
		page.MetaDescription = approved.MetaDescription
		page.H1 = approved.HeroHeadline
		if approved.CTA != "" {
			page.CTA = approved.CTA
		}
		page.FAQ = append([]models.FAQItem(nil), approved.FAQ...)
		if approved.HeroSub != "" {
			page.BodyHTML = "<p>" + approved.HeroSub + "</p>\n" + page.BodyHTML
		}
	}

	return page, nil
}

// variantPage assembles the preview snapshot for one candidate variant,
// before any approval exists.
func variantPage(run *models.Run, v *models.Variant) (*models.Page, error) {
	body, err := export.MarkdownHTML(run.BodyDraft)
	if err != nil {
		return nil, fmt.Errorf("render body draft: %w", err)
	}
	page := &models.Page{
		MetaTitle:       v.MetaTitle,
		MetaDescription: v.MetaDescription,
		CanonicalURL:    run.CanonicalURL,
		H1:              v.HeroHeadline,
		BodyHTML:        body,
		CTA:             v.CTA,
		BuyURL:          run.BuyURL,
		FAQ:             append([]models.FAQItem(nil), v.FAQ...),
	}
	if v.HeroSub != "" {
		page.BodyHTML = "<p>" + v.HeroSub + "</p>\n" + page.BodyHTML
	}
	return page, nil
}

func clonePage(p *models.Page) *models.Page {
	out := *p
	out.FAQ = append([]models.FAQItem(nil), p.FAQ...)
	return &out
}
