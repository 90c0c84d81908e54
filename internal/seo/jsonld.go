package seo

import (
	"encoding/json"
	"strings"

	"landing-ops/backend/pkg/models"
)

// BuildFAQJSONLD renders the schema.org FAQPage linked-data document for
// the given FAQ entries. Entries with an empty question or answer are
// skipped so the markup stays valid.
func BuildFAQJSONLD(faq []models.FAQItem) ([]byte, error) {
	type answer struct {
		Type string `json:"@type"`
		Text string `json:"text"`
	}
	type question struct {
		Type           string `json:"@type"`
		Name           string `json:"name"`
		AcceptedAnswer answer `json:"acceptedAnswer"`
	}

	main := []question{}
	for _, item := range faq {
		q := strings.TrimSpace(item.Question)
		a := strings.TrimSpace(item.Answer)
		if q == "" || a == "" {
			continue
		}
		main = append(main, question{
			Type:           "Question",
			Name:           q,
			AcceptedAnswer: answer{Type: "Answer", Text: a},
		})
	}

	doc := struct {
		Context    string     `json:"@context"`
		Type       string     `json:"@type"`
		MainEntity []question `json:"mainEntity"`
	}{
		Context:    "https://schema.org",
		Type:       "FAQPage",
		MainEntity: main,
	}
	return json.Marshal(doc)
}
