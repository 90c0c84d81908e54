// Package services holds the external collaborator boundaries: the LLM
// copy generator and the retry policy for calls that cross the network.
package services

import (
	"context"
	"fmt"

	"landing-ops/backend/pkg/models"
)

// GenerateRequest carries the run inputs the generator writes copy from.
type GenerateRequest struct {
	PrimaryKeyword     string
	SupportingKeywords []string
	Intent             models.Intent
	MetaTitle          string
	MetaDescription    string
	BodyDraft          string
}

// VariantDraft is one generated copy candidate before QC.
type VariantDraft struct {
	MetaTitle       string           `json:"meta_title"`
	MetaDescription string           `json:"meta_description"`
	HeroHeadline    string           `json:"hero_headline"`
	HeroSub         string           `json:"hero_sub"`
	CTA             string           `json:"cta"`
	FAQ             []models.FAQItem `json:"faq"`
}

// GeneratedPack is the A/B pair produced by one generation call.
type GeneratedPack struct {
	A     VariantDraft `json:"a"`
	B     VariantDraft `json:"b"`
	Notes []string     `json:"notes,omitempty"`
}

// RewriteRequest asks for an LLM revision of a page that still carries
// audit findings after the rule-based fix pass.
type RewriteRequest struct {
	Page               *models.Page
	Findings           []models.Finding
	PrimaryKeyword     string
	SupportingKeywords []string
	Intent             models.Intent
}

// CopyGenerator produces landing copy. Implementations may fail with a
// *ProviderError; transient ones are safe to retry.
type CopyGenerator interface {
	// Generate writes the A/B variant pack for a run's inputs.
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedPack, error)
	// Rewrite revises a page to clear the given findings while keeping
	// its factual content.
	Rewrite(ctx context.Context, req RewriteRequest) (*models.Page, error)
}

// ProviderError wraps a failure from an external provider. Transient
// failures (timeouts, rate limits, 5xx) may be retried; permanent ones
// (bad request, unparseable output) may not.
type ProviderError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
