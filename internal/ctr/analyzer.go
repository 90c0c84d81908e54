// Package ctr aggregates preview traffic and recommends a variant using a
// pooled two-proportion z-test.
package ctr

import (
	"math"

	"landing-ops/backend/pkg/models"
)

// Analyzer is a stateless aggregation over a run's event set. MinViews is
// the per-variant sample floor below which no recommendation is made;
// Confidence is the two-sided significance level (0.95 means p < 0.05).
type Analyzer struct {
	MinViews   int
	Confidence float64
}

// NewAnalyzer creates an Analyzer with the given thresholds.
func NewAnalyzer(minViews int, confidence float64) *Analyzer {
	return &Analyzer{MinViews: minViews, Confidence: confidence}
}

// Summarize partitions events by variant and computes counts, CTRs and the
// recommendation. Zero-view variants report CTR 0 and always come back as
// insufficient data; there is no divide-by-zero path.
func (a *Analyzer) Summarize(events []*models.Event) *models.CTRSummary {
	var stats [2]models.VariantStats
	for _, e := range events {
		var s *models.VariantStats
		switch e.Variant {
		case models.VariantA:
			s = &stats[0]
		case models.VariantB:
			s = &stats[1]
		default:
			continue
		}
		switch e.Kind {
		case models.EventView:
			s.Views++
		case models.EventClick:
			s.Clicks++
		}
	}
	for i := range stats {
		if stats[i].Views > 0 {
			stats[i].CTR = float64(stats[i].Clicks) / float64(stats[i].Views)
		}
	}
	av, bv := stats[0], stats[1]

	summary := &models.CTRSummary{
		A:          av,
		B:          bv,
		Uplift:     bv.CTR - av.CTR,
		PValue:     1.0,
		MinViews:   a.MinViews,
		Confidence: a.Confidence,
	}

	if av.Views > 0 && bv.Views > 0 {
		pooled := float64(av.Clicks+bv.Clicks) / float64(av.Views+bv.Views)
		denom := math.Sqrt(math.Max(pooled*(1-pooled)*(1.0/float64(av.Views)+1.0/float64(bv.Views)), 1e-12))
		summary.Z = (bv.CTR - av.CTR) / denom
		summary.PValue = twoSidedP(summary.Z)
	}

	switch {
	case av.Views < a.MinViews || bv.Views < a.MinViews:
		summary.Outcome = models.OutcomeInsufficientData
	case summary.PValue < 1.0-a.Confidence:
		if bv.CTR > av.CTR {
			summary.Outcome = models.OutcomeRecommendB
			summary.Recommended = models.VariantB
		} else {
			summary.Outcome = models.OutcomeRecommendA
			summary.Recommended = models.VariantA
		}
	default:
		summary.Outcome = models.OutcomeNoSignificance
	}

	return summary
}

// twoSidedP converts a z statistic to a two-sided p-value via the
// standard normal CDF.
func twoSidedP(z float64) float64 {
	cdf := 0.5 * (1.0 + math.Erf(math.Abs(z)/math.Sqrt2))
	return 2.0 * (1.0 - cdf)
}
