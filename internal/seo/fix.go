package seo

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/pkg/models"
)

// claimReplacements soften known banned phrases without garbling the copy.
// Anything the table misses is left for the LLM rewrite pass.
var claimReplacements = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)\bcures?\b`), "helps care for"},
	{regexp.MustCompile(`(?i)\btreats (eczema|acne)\b`), "supports $1-prone skin"},
	{regexp.MustCompile(`(?i)\bmedical grade\b`), "carefully formulated"},
	{regexp.MustCompile(`(?i)\bno side effects\b`), "gentle by design"},
	{regexp.MustCompile(`(?i)100%\s*`), "highly "},
	{regexp.MustCompile(`(?i)\bdoctor recommended\b`), "widely used"},
}

// fillerSections are appended, in order, when the body falls short of the
// word floor. Each is distinct so the page never repeats itself.
var fillerSections = []string{
	"<p>Texture and finish matter as much as the ingredient list. A formula that layers well under sunscreen or makeup is one you will actually use daily, and consistency is what moves the needle for most skin concerns over a full season.</p>",
	"<p>Climate changes how a product behaves. Drier months usually call for a richer layer or an extra hydrating step underneath, while humid weather favors lighter textures applied more sparingly to avoid congestion.</p>",
	"<p>Give any new addition to a routine two to four weeks before judging it. Skin renews on roughly a monthly cycle, so quick verdicts tend to reflect the weather or the rest of the routine rather than the product itself.</p>",
	"<p>When comparing options, read the full ingredient list rather than the headline actives alone. Supporting humectants and emollients decide how the formula feels, and fragrance position hints at how much is actually in there.</p>",
	"<p>Storage is easy to overlook: keep products away from direct sun and tightly closed, and prefer pump or tube packaging for actives that degrade with air exposure.</p>",
}

// scaffoldFAQ tops up thin FAQ lists. Answers deliberately stay on the
// cautious side of the compliance rules.
var scaffoldFAQ = []models.FAQItem{
	{Question: "Is this suitable for sensitive skin?", Answer: "Individual skin responses differ, so do a patch test on the inner arm before first use."},
	{Question: "Can I use it morning and night?", Answer: "Yes, it fits a standard morning and evening routine; adjust the amount to how your skin feels."},
	{Question: "Where does it go in my routine?", Answer: "Apply after cleansing and toner, before heavier creams, and finish with sunscreen in the morning."},
	{Question: "How long until I see a difference?", Answer: "Most people evaluate after two to four weeks of consistent use; results may vary."},
}

// Fixer applies deterministic rule-based corrections that push a page
// toward a PASS audit. It never mutates its input.
type Fixer struct {
	cfg config.AuditConfig
}

// NewFixer creates a new Fixer with the same bounds the auditor uses.
func NewFixer(cfg config.AuditConfig) *Fixer {
	return &Fixer{cfg: cfg}
}

// Apply returns a corrected copy of page. canonicalFallback is used when
// the page has no canonical URL yet.
func (f *Fixer) Apply(page *models.Page, primaryKeyword string, supporting []string, intent models.Intent, canonicalFallback string) *models.Page {
	p := *page
	p.FAQ = append([]models.FAQItem(nil), page.FAQ...)

	keyword := strings.TrimSpace(primaryKeyword)
	var sup []string
	for _, s := range supporting {
		if s = strings.TrimSpace(s); s != "" {
			sup = append(sup, s)
		}
	}

	p.MetaTitle = sanitizeClaims(p.MetaTitle)
	p.MetaDescription = sanitizeClaims(p.MetaDescription)
	p.BodyHTML = sanitizeClaims(p.BodyHTML)

	p.MetaTitle = f.fixTitle(p.MetaTitle, keyword, intent)
	p.MetaDescription = f.fixDescription(p.MetaDescription, keyword)
	p.H1 = fixH1(p.H1, keyword)

	if strings.TrimSpace(p.H1) != "" {
		p.BodyHTML = demoteBodyH1s(p.BodyHTML)
	}
	base := 0
	if strings.TrimSpace(p.H1) != "" {
		base = 1
	}
	p.BodyHTML = normalizeHeadingSkips(p.BodyHTML, base)

	p.BodyHTML = ensureKeywordLead(p.BodyHTML, keyword, sup, intent)
	p.BodyHTML = ensureSupportingHits(p.BodyHTML, sup)
	p.BodyHTML = f.ensureSections(p.BodyHTML, keyword, intent)
	p.BodyHTML = f.ensureWordFloor(p.BodyHTML)
	p.BodyHTML = ensureDisclaimer(p.BodyHTML)
	p.BodyHTML = f.reduceDensity(p.BodyHTML, keyword)

	p.FAQ = f.ensureFAQ(p.FAQ, keyword)

	if strings.TrimSpace(p.CanonicalURL) == "" {
		p.CanonicalURL = canonicalFallback
	}
	if strings.TrimSpace(p.OGTitle) == "" {
		p.OGTitle = p.MetaTitle
	}
	if strings.TrimSpace(p.OGDescription) == "" {
		p.OGDescription = p.MetaDescription
	}

	return &p
}

func sanitizeClaims(s string) string {
	for _, r := range claimReplacements {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}

func (f *Fixer) fixTitle(title, keyword string, intent models.Intent) string {
	title = strings.TrimSpace(title)
	if keyword != "" && !strings.Contains(norm(title), norm(keyword)) {
		if title == "" {
			title = keyword + " selection guide"
		} else {
			title = keyword + " " + title
		}
	}
	pad := ""
	if keyword != "" {
		if intent == models.IntentPurchase {
			pad = "| " + keyword + " buying guide"
		} else {
			pad = "| " + keyword + " essentials"
		}
	}
	return fitLen(title, f.cfg.TitleMin, f.cfg.TitleMax, pad)
}

func (f *Fixer) fixDescription(desc, keyword string) string {
	desc = strings.TrimSpace(desc)
	if keyword != "" && !strings.Contains(norm(desc), norm(keyword)) {
		if desc == "" {
			desc = "A practical overview of " + keyword + "."
		} else {
			desc = keyword + ": " + desc
		}
	}
	pad := "Selection criteria, usage tips and FAQ, written without overclaims. See the full rundown."
	desc = fitLen(desc, f.cfg.DescMin, f.cfg.DescMax, pad)
	return ensureSentenceEnd(desc, f.cfg.DescMax)
}

func fixH1(h1, keyword string) string {
	h1 = strings.TrimSpace(h1)
	if keyword == "" {
		return h1
	}
	if h1 == "" {
		return keyword
	}
	if strings.Contains(norm(h1), norm(keyword)) {
		return h1
	}
	return keyword + " " + h1
}

// fitLen pads short text with pad and hard-trims long text at a space.
// Bounds are runes, matching how the auditor measures, and the trim never
// splits a multi-byte character.
func fitLen(s string, lo, hi int, pad string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < lo && pad != "" {
		s = strings.TrimSpace(s + " " + pad)
	}
	runes := []rune(s)
	if len(runes) > hi {
		cut := runes[:hi]
		for i := len(cut) - 1; i > lo; i-- {
			if cut[i] == ' ' {
				cut = cut[:i]
				break
			}
		}
		s = strings.TrimSpace(string(cut))
	}
	return s
}

func ensureSentenceEnd(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	last, size := utf8.DecodeLastRuneInString(s)
	if strings.ContainsRune(".!?", last) {
		return s
	}
	if utf8.RuneCountInString(s)+1 <= maxLen {
		return s + "."
	}
	return s[:len(s)-size] + "."
}

var h1OpenRE = regexp.MustCompile(`(?i)<h1\b[^>]*>`)
var h1CloseRE = regexp.MustCompile(`(?i)</h1>`)

// demoteBodyH1s rewrites body <h1> tags to <h2>; the dedicated H1 field is
// the page's single top heading.
func demoteBodyH1s(html string) string {
	html = h1OpenRE.ReplaceAllString(html, "<h2>")
	return h1CloseRE.ReplaceAllString(html, "</h2>")
}

// normalizeHeadingSkips rewrites headings that jump more than one level
// deeper than their predecessor down to the deepest allowed level.
func normalizeHeadingSkips(html string, base int) string {
	tags := scanHeadings(html)
	if len(tags) == 0 {
		return html
	}

	mapped := map[int]int{}
	prev := base
	var b strings.Builder
	last := 0
	for _, t := range tags {
		level := t.level
		if t.closing {
			if m, ok := mapped[t.level]; ok {
				level = m
			}
		} else {
			if level > prev+1 {
				level = prev + 1
			}
			mapped[t.level] = level
			prev = level
		}
		b.WriteString(html[last:t.start])
		if t.closing {
			fmt.Fprintf(&b, "</h%d>", level)
		} else {
			fmt.Fprintf(&b, "<h%d>", level)
		}
		last = t.end
	}
	b.WriteString(html[last:])
	return b.String()
}

// ensureKeywordLead prepends a lead paragraph when the primary keyword is
// missing from the first 120 words.
func ensureKeywordLead(html, keyword string, supporting []string, intent models.Intent) string {
	if keyword == "" {
		return html
	}
	if strings.Contains(norm(firstWords(stripTags(html), 120)), norm(keyword)) {
		return html
	}
	supPart := ""
	if len(supporting) > 0 {
		n := len(supporting)
		if n > 3 {
			n = 3
		}
		supPart = " (" + strings.Join(supporting[:n], ", ") + ")"
	}
	var lead string
	if intent == models.IntentPurchase {
		lead = fmt.Sprintf("<p><b>%s</b>%s: selection criteria and usage tips, summarized up front so you can decide quickly.</p>", keyword, supPart)
	} else {
		lead = fmt.Sprintf("<p><b>%s</b>%s: the essentials first, details below.</p>", keyword, supPart)
	}
	return lead + "\n" + html
}

// ensureSupportingHits works at least two supporting keywords into the body.
func ensureSupportingHits(html string, supporting []string) string {
	if len(supporting) == 0 {
		return html
	}
	plain := norm(stripTags(html))
	hits := 0
	var missing []string
	for _, s := range supporting {
		if strings.Contains(plain, norm(s)) {
			hits++
		} else {
			missing = append(missing, s)
		}
	}
	if hits >= 2 || len(missing) == 0 {
		return html
	}
	n := 2 - hits
	if n > len(missing) {
		n = len(missing)
	}
	for i := range missing[:n] {
		missing[i] = "<b>" + missing[i] + "</b>"
	}
	line := "<p>Related angles worth a look: " + strings.Join(missing[:n], ", ") + ".</p>"
	return html + "\n" + line
}

// ensureSections scaffolds H2 sections up to the configured minimum.
func (f *Fixer) ensureSections(html, keyword string, intent models.Intent) string {
	current := countHeadings(html, 2)
	if current >= f.cfg.MinH2 {
		return html
	}
	if keyword == "" {
		keyword = "this product"
	}

	sections := []string{
		fmt.Sprintf("<h2>%s key points</h2><p>When choosing %s, weigh lasting hydration, feel on the skin, the ingredient lineup and your own skin condition together rather than any single spec.</p>", keyword, keyword),
		"<h2>Ingredients to check</h2><p>Ceramides and panthenol come up often in barrier and soothing routines. Responses differ by person, so a patch test before regular use is the safe habit.</p>",
		"<h2>How to use it</h2><p>After cleansing and toner, spread a moderate amount in a thin layer; layer a little extra on dry patches and finish with sunscreen during the day.</p>",
	}
	if intent == models.IntentPurchase {
		sections = append(sections, "<h2>Before you buy</h2><ul><li>Fit with your skin type and sensitivity (patch test recommended)</li><li>Texture and feel, which shift with season and humidity</li><li>The full ingredient list for known triggers</li></ul>")
	}

	needed := f.cfg.MinH2 - current
	if needed > len(sections) {
		needed = len(sections)
	}
	return html + "\n" + strings.Join(sections[:needed], "\n")
}

// ensureWordFloor appends distinct guidance paragraphs until the body
// clears the minimum word count.
func (f *Fixer) ensureWordFloor(html string) string {
	for _, filler := range fillerSections {
		if wordCount(stripTags(html)) >= f.cfg.MinWords {
			break
		}
		html = html + "\n" + filler
	}
	return html
}

func ensureDisclaimer(html string) string {
	plain := strings.ToLower(stripTags(html))
	for _, m := range disclaimerMarkers {
		if strings.Contains(plain, m) {
			return html
		}
	}
	return html + "\n<p><i>Note: this is general information; results may vary with individual skin. Patch test first, and stop if irritation occurs.</i></p>"
}

// reduceDensity weakens keyword repetition by swapping alternate
// occurrences, from the fourth on, for a neutral reference.
func (f *Fixer) reduceDensity(html, keyword string) string {
	if keyword == "" {
		return html
	}
	plain := stripTags(html)
	words := wordCount(plain)
	if words == 0 {
		return html
	}
	occ := strings.Count(norm(plain), norm(keyword))
	if float64(occ)/float64(words)*100.0 <= f.cfg.MaxKeywordDensity {
		return html
	}

	parts := strings.Split(html, keyword)
	if len(parts) <= 1 {
		return html
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for i := 1; i < len(parts); i++ {
		token := keyword
		if i >= 4 && i%2 == 0 {
			token = "this formula"
		}
		b.WriteString(token)
		b.WriteString(parts[i])
	}
	return b.String()
}

// ensureFAQ completes partial entries' removal and tops the list up to the
// configured minimum from the scaffold pool.
func (f *Fixer) ensureFAQ(faq []models.FAQItem, keyword string) []models.FAQItem {
	var out []models.FAQItem
	seen := map[string]bool{}
	for _, item := range faq {
		q := strings.TrimSpace(item.Question)
		a := strings.TrimSpace(item.Answer)
		if q == "" || a == "" {
			continue
		}
		out = append(out, models.FAQItem{Question: q, Answer: a})
		seen[norm(q)] = true
	}
	for _, cand := range scaffoldFAQ {
		if len(out) >= f.cfg.MinFAQ {
			break
		}
		q := cand.Question
		if keyword != "" && strings.HasPrefix(q, "Is this") {
			q = "Is " + keyword + " suitable for sensitive skin?"
		}
		if seen[norm(q)] {
			continue
		}
		out = append(out, models.FAQItem{Question: q, Answer: cand.Answer})
		seen[norm(q)] = true
	}
	return out
}
