// Package export materializes an audited page as a standalone HTML file
// and renders previews. Rendering is deterministic: the same page always
// produces the same bytes and hash.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"

	"landing-ops/backend/internal/seo"
	"landing-ops/backend/pkg/models"
)

// MarkdownHTML converts a markdown body to HTML.
func MarkdownHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageTemplate = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Page.MetaTitle}}</title>
<meta name="description" content="{{.Page.MetaDescription}}">
{{- if .Page.CanonicalURL}}
<link rel="canonical" href="{{.Page.CanonicalURL}}">
{{- end}}
{{- if .Page.OGTitle}}
<meta property="og:title" content="{{.Page.OGTitle}}">
{{- end}}
{{- if .Page.OGDescription}}
<meta property="og:description" content="{{.Page.OGDescription}}">
{{- end}}
{{- if .FAQJSONLD}}
<script type="application/ld+json">{{.FAQJSONLD}}</script>
{{- end}}
</head>
<body>
<main>
{{- if .Page.H1}}
<h1>{{.Page.H1}}</h1>
{{- end}}
{{.Body}}
{{- if .Page.CTA}}
<section class="cta">
{{- if .Page.BuyURL}}
<a class="cta-button" href="{{.Page.BuyURL}}">{{.Page.CTA}}</a>
{{- else}}
<button class="cta-button">{{.Page.CTA}}</button>
{{- end}}
</section>
{{- end}}
{{- if .FAQ}}
<section class="faq">
<h2>Frequently asked questions</h2>
{{- range .FAQ}}
<details>
<summary>{{.Question}}</summary>
<p>{{.Answer}}</p>
</details>
{{- end}}
</section>
{{- end}}
</main>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// Renderer turns page snapshots into HTML documents and writes export
// artifacts under dir.
type Renderer struct {
	dir    string
	minFAQ int
}

// NewRenderer creates a Renderer writing into dir. FAQ JSON-LD is only
// emitted once at least minFAQ complete entries exist.
func NewRenderer(dir string, minFAQ int) *Renderer {
	return &Renderer{dir: dir, minFAQ: minFAQ}
}

// Render produces the full HTML document for a page.
func (r *Renderer) Render(page *models.Page) ([]byte, error) {
	var faq []models.FAQItem
	for _, item := range page.FAQ {
		if item.Question != "" && item.Answer != "" {
			faq = append(faq, item)
		}
	}

	var jsonld template.JS
	if len(faq) >= r.minFAQ {
		b, err := seo.BuildFAQJSONLD(faq)
		if err != nil {
			return nil, fmt.Errorf("faq json-ld: %w", err)
		}
		jsonld = template.JS(b)
	}

	data := struct {
		Page      *models.Page
		Body      template.HTML
		FAQ       []models.FAQItem
		FAQJSONLD template.JS
	}{
		Page:      page,
		Body:      template.HTML(page.BodyHTML),
		FAQ:       faq,
		FAQJSONLD: jsonld,
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

// Export renders the page and writes it to <dir>/<runID>.html, returning
// the artifact record. The write is atomic so a crashed export never
// leaves a half-written file behind.
func (r *Renderer) Export(runID string, page *models.Page) (*models.ExportArtifact, error) {
	doc, err := r.Render(page)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(r.dir, runID+".html")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("finalize export: %w", err)
	}

	sum := sha256.Sum256(doc)
	return &models.ExportArtifact{
		RunID:     runID,
		Path:      path,
		SHA256:    hex.EncodeToString(sum[:]),
		Bytes:     len(doc),
		CreatedAt: time.Now().UTC(),
	}, nil
}
