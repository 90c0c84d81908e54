package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"landing-ops/backend/pkg/models"
)

const generateSystemPrompt = `You are a senior conversion copywriter for a skincare brand.
You write landing page copy that is persuasive but never makes medical or
absolute-efficacy claims. Never use words like "cure", "treats", "medical
grade", "no side effects", "100%" or "doctor recommended". Respond with
JSON only, no markdown fences, no commentary.`

const rewriteSystemPrompt = `You are a senior SEO editor for a skincare brand.
You revise landing pages to fix specific audit findings while keeping the
factual content, tone and structure intact. Never introduce medical or
absolute-efficacy claims. Respond with JSON only, no markdown fences, no
commentary.`

// OpenAIGenerator implements CopyGenerator with the official openai-go
// SDK (chat completions).
type OpenAIGenerator struct {
	model   string
	timeout time.Duration
	opts    []option.RequestOption
}

// OpenAIConfig carries the generator's connection settings.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

// NewOpenAIGenerator creates a generator from config. The API key and
// model are required; base URL is optional for OpenAI-compatible hosts.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGenerator{model: cfg.Model, timeout: timeout, opts: opts}, nil
}

// Generate asks the model for an A/B variant pack as JSON.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*GeneratedPack, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Primary keyword: %s\n", req.PrimaryKeyword)
	fmt.Fprintf(&sb, "Supporting keywords: %s\n", strings.Join(req.SupportingKeywords, ", "))
	fmt.Fprintf(&sb, "Search intent: %s\n", req.Intent)
	fmt.Fprintf(&sb, "Current meta title: %s\n", req.MetaTitle)
	fmt.Fprintf(&sb, "Current meta description: %s\n", req.MetaDescription)
	if req.BodyDraft != "" {
		fmt.Fprintf(&sb, "Body draft (markdown):\n%s\n", req.BodyDraft)
	}
	sb.WriteString(`
Produce two distinct copy candidates for an A/B test. Variant A leads with
the product benefit; variant B leads with the customer problem. Each needs:
meta_title (30-60 chars, contains the primary keyword), meta_description
(70-160 chars), hero_headline, hero_sub, cta, and faq (3-5 entries of
{"q": ..., "a": ...}).

Return exactly this JSON shape:
{"a": {"meta_title": "...", "meta_description": "...", "hero_headline": "...",
"hero_sub": "...", "cta": "...", "faq": [{"q": "...", "a": "..."}]},
"b": { ...same fields... }}`)

	raw, err := g.complete(ctx, "generate", generateSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var pack GeneratedPack
	if err := json.Unmarshal(extractJSON(raw), &pack); err != nil {
		return nil, &ProviderError{Op: "generate", Err: fmt.Errorf("unparseable model output: %w", err)}
	}
	if pack.A.MetaTitle == "" || pack.B.MetaTitle == "" {
		return nil, &ProviderError{Op: "generate", Err: errors.New("model returned an incomplete variant pack")}
	}
	return &pack, nil
}

// Rewrite asks the model to revise the page so the listed findings clear.
func (g *OpenAIGenerator) Rewrite(ctx context.Context, req RewriteRequest) (*models.Page, error) {
	pageJSON, err := json.Marshal(req.Page)
	if err != nil {
		return nil, &ProviderError{Op: "rewrite", Err: err}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Primary keyword: %s\n", req.PrimaryKeyword)
	fmt.Fprintf(&sb, "Supporting keywords: %s\n", strings.Join(req.SupportingKeywords, ", "))
	fmt.Fprintf(&sb, "Search intent: %s\n\n", req.Intent)
	sb.WriteString("Audit findings still open:\n")
	for _, f := range req.Findings {
		fmt.Fprintf(&sb, "- [%s %s] %s", f.RuleID, f.Severity, f.Message)
		if f.FixHint != "" {
			fmt.Fprintf(&sb, " (hint: %s)", f.FixHint)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nCurrent page JSON:\n%s\n", pageJSON)
	sb.WriteString(`
Rewrite the page so every finding above is resolved. Keep the canonical
URL, buy URL and CTA intact unless a finding names them. Return the full
page in the same JSON shape you were given.`)

	raw, err := g.complete(ctx, "rewrite", rewriteSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var page models.Page
	if err := json.Unmarshal(extractJSON(raw), &page); err != nil {
		return nil, &ProviderError{Op: "rewrite", Err: fmt.Errorf("unparseable model output: %w", err)}
	}
	if page.MetaTitle == "" || page.BodyHTML == "" {
		return nil, &ProviderError{Op: "rewrite", Err: errors.New("model returned an incomplete page")}
	}
	return &page, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, op, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client := openai.NewClient(g.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", &ProviderError{Op: op, Err: err, Transient: isTransient(err)}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Op: op, Err: errors.New("openai: empty choices"), Transient: true}
	}
	return resp.Choices[0].Message.Content, nil
}

// isTransient classifies SDK failures. Timeouts, rate limits and server
// errors are retryable; 4xx request errors are not.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Anything that never reached the API: network failure or timeout.
	return true
}

// extractJSON pulls the outermost JSON object out of a completion that
// may be wrapped in markdown fences or prose.
func extractJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}
