package seo

import (
	"regexp"
	"strings"
)

var (
	tagRE     = regexp.MustCompile(`<[^>]+>`)
	wsRE      = regexp.MustCompile(`\s+`)
	headingRE = regexp.MustCompile(`(?i)</?h[1-6]\b[^>]*>`)
)

// stripTags flattens HTML to plain text with single spaces.
func stripTags(html string) string {
	return strings.TrimSpace(wsRE.ReplaceAllString(tagRE.ReplaceAllString(html, " "), " "))
}

// norm lowercases and collapses whitespace for keyword matching.
func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(wsRE.ReplaceAllString(s, " ")))
}

func wordCount(text string) int {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	return len(strings.Fields(t))
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// headingTag is one <hN> or </hN> occurrence in document order.
type headingTag struct {
	level   int
	closing bool
	start   int
	end     int
}

// scanHeadings extracts heading open/close tags from HTML in order.
func scanHeadings(html string) []headingTag {
	var out []headingTag
	for _, loc := range headingRE.FindAllStringIndex(html, -1) {
		tag := html[loc[0]:loc[1]]
		closing := strings.HasPrefix(tag, "</")
		i := strings.IndexAny(tag, "hH")
		level := int(tag[i+1] - '0')
		out = append(out, headingTag{level: level, closing: closing, start: loc[0], end: loc[1]})
	}
	return out
}

// headingLevels returns the levels of opening heading tags in order.
func headingLevels(html string) []int {
	var levels []int
	for _, h := range scanHeadings(html) {
		if !h.closing {
			levels = append(levels, h.level)
		}
	}
	return levels
}

// countHeadings returns how many opening tags of the given level exist.
func countHeadings(html string, level int) int {
	n := 0
	for _, l := range headingLevels(html) {
		if l == level {
			n++
		}
	}
	return n
}

// countHeadingSkips counts headings that jump more than one level deeper
// than the previous heading. base is the implicit starting level (1 when
// the page carries a dedicated H1 field, 0 otherwise).
func countHeadingSkips(html string, base int) int {
	skips := 0
	prev := base
	for _, l := range headingLevels(html) {
		if l > prev+1 {
			skips++
		}
		prev = l
	}
	return skips
}
