package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-ops/backend/internal/qc"
	"landing-ops/backend/pkg/models"
)

func TestMockGeneratorProducesTwoDistinctVariants(t *testing.T) {
	pack, err := MockGenerator{}.Generate(context.Background(), GenerateRequest{
		PrimaryKeyword: "vitamin c serum",
		Intent:         models.IntentPurchase,
	})
	require.NoError(t, err)

	assert.NotEqual(t, pack.A.MetaTitle, pack.B.MetaTitle)
	assert.NotEqual(t, pack.A.HeroHeadline, pack.B.HeroHeadline)
	require.Len(t, pack.A.FAQ, 3)
	require.Len(t, pack.B.FAQ, 3)
}

func TestMockGeneratorStaysWithinMetaBounds(t *testing.T) {
	for _, kw := range []string{"serum", "vitamin c serum", "ultra hydrating overnight recovery barrier repair cream"} {
		pack, err := MockGenerator{}.Generate(context.Background(), GenerateRequest{PrimaryKeyword: kw})
		require.NoError(t, err)

		for _, draft := range []VariantDraft{pack.A, pack.B} {
			assert.GreaterOrEqual(t, len(draft.MetaTitle), 30, "keyword %q title %q", kw, draft.MetaTitle)
			assert.LessOrEqual(t, len(draft.MetaTitle), 60, "keyword %q title %q", kw, draft.MetaTitle)
			assert.GreaterOrEqual(t, len(draft.MetaDescription), 70, "keyword %q", kw)
			assert.LessOrEqual(t, len(draft.MetaDescription), 160, "keyword %q", kw)
		}
	}
}

func TestMockGeneratorCopyPassesCompliance(t *testing.T) {
	pack, err := MockGenerator{}.Generate(context.Background(), GenerateRequest{
		PrimaryKeyword: "niacinamide serum",
		Intent:         models.IntentInfo,
	})
	require.NoError(t, err)

	checker := qc.NewChecker()
	for _, draft := range []VariantDraft{pack.A, pack.B} {
		v := &models.Variant{
			MetaTitle:       draft.MetaTitle,
			MetaDescription: draft.MetaDescription,
			HeroHeadline:    draft.HeroHeadline,
			HeroSub:         draft.HeroSub,
			CTA:             draft.CTA,
			FAQ:             draft.FAQ,
		}
		result := checker.CheckVariant(v)
		assert.Equal(t, models.VerdictPass, result.Grade, "hits: %v", result.Hits)
	}
}

func TestMockGeneratorRewriteReturnsCopy(t *testing.T) {
	page := &models.Page{
		MetaTitle: "title",
		BodyHTML:  "<p>body</p>",
		FAQ:       []models.FAQItem{{Question: "q", Answer: "a"}},
	}
	out, err := MockGenerator{}.Rewrite(context.Background(), RewriteRequest{Page: page})
	require.NoError(t, err)

	assert.Equal(t, page.MetaTitle, out.MetaTitle)
	out.FAQ[0].Question = "changed"
	assert.Equal(t, "q", page.FAQ[0].Question)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
		{"leading whitespace", "   \n {\"a\":1} ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(extractJSON(tc.in)))
		})
	}
}

func TestNewOpenAIGeneratorValidatesConfig(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{Model: "gpt-4.1-mini"})
	assert.Error(t, err)

	_, err = NewOpenAIGenerator(OpenAIConfig{APIKey: "sk-test"})
	assert.Error(t, err)

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4.1-mini"})
	require.NoError(t, err)
	assert.NotNil(t, gen)
}
