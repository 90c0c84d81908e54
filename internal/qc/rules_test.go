package qc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"landing-ops/backend/pkg/models"
)

func TestCheckPassesCleanCopy(t *testing.T) {
	c := NewChecker()

	result := c.Check("A lightweight serum that supports an even skin tone over time.")

	assert.Equal(t, models.VerdictPass, result.Grade)
	assert.Empty(t, result.Hits)
}

func TestCheckFailsOnMedicalClaims(t *testing.T) {
	c := NewChecker()

	result := c.Check("This cream cures eczema and is doctor recommended.")

	assert.Equal(t, models.VerdictFail, result.Grade)
	assert.Contains(t, result.Hits, "cures")
	assert.Contains(t, result.Hits, "doctor recommended")
}

func TestCheckWarnsOnOverclaims(t *testing.T) {
	c := NewChecker()

	result := c.Check("See results instantly with our guaranteed formula.")

	assert.Equal(t, models.VerdictWarn, result.Grade)
	assert.ElementsMatch(t, []string{"instantly", "guaranteed"}, result.Hits)
}

func TestCheckFailOutranksWarn(t *testing.T) {
	c := NewChecker()

	result := c.Check("A miracle that cures everything.")

	assert.Equal(t, models.VerdictFail, result.Grade)
	assert.Equal(t, []string{"cures"}, result.Hits)
}

func TestCheckMatchesWholeWordsOnly(t *testing.T) {
	c := NewChecker()

	// "cure" inside "secure" and "curated" must not trip the screen.
	result := c.Check("A secure checkout and a curated routine.")

	assert.Equal(t, models.VerdictPass, result.Grade)
}

func TestCheckIsCaseInsensitive(t *testing.T) {
	c := NewChecker()

	result := c.Check("MEDICAL GRADE formula with No Side Effects")

	assert.Equal(t, models.VerdictFail, result.Grade)
	assert.Len(t, result.Hits, 2)
}

func TestCheckMatchesTermsWithSymbols(t *testing.T) {
	c := NewChecker()

	result := c.Check("Visibly 100% brighter in a week")

	assert.Equal(t, models.VerdictFail, result.Grade)
	assert.Contains(t, result.Hits, "100%")
}

func TestCheckVariantScansAllFields(t *testing.T) {
	c := NewChecker()

	v := &models.Variant{
		MetaTitle:    "Gentle serum for daily use",
		HeroHeadline: "Perfect skin starts here",
		FAQ: []models.FAQItem{
			{Question: "Does it work overnight?", Answer: "It treats acne overnight."},
		},
	}
	result := c.CheckVariant(v)

	assert.Equal(t, models.VerdictFail, result.Grade)
	assert.Contains(t, result.Hits, "treats acne")
}
