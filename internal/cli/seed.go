package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/export"
	"landing-ops/backend/internal/logging"
	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/services"
	"landing-ops/backend/pkg/models"
)

// NewSeedCommand creates the seed command. It loads a demo run with
// generated variants and enough preview traffic for a recommendation,
// which makes local walkthroughs of the lifecycle repeatable.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "seed",
		Short:         "Insert a demo run with variants and preview traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), rootOpts)
		},
	}
}

func runSeed(ctx context.Context, opts *RootOptions) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	renderer := export.NewRenderer(cfg.Server.ExportDir, cfg.Audit.MinFAQ)
	machine := pipeline.NewMachine(store, services.MockGenerator{}, renderer, cfg, logger)

	run, err := machine.CreateRun(ctx, pipeline.CreateRunInput{
		MetaTitle:       "Niacinamide Serum for Balanced Skin",
		MetaDescription: "A lightweight niacinamide serum that supports an even skin tone and a smoother-looking complexion.",
		BodyDraft: `## Why niacinamide

Niacinamide serum has become a staple for people chasing an even tone without heavy actives.

## How to use it

Apply a few drops to clean skin morning and evening, then follow with moisturizer and sunscreen.

## What to expect

Visible changes build up over weeks of consistent use, not overnight.`,
		PrimaryKeyword:     "niacinamide serum",
		SupportingKeywords: []string{"even skin tone", "pore care", "lightweight serum"},
		Intent:             models.IntentPurchase,
		CTA:                "Shop the serum",
		BuyURL:             "https://example.com/products/niacinamide-serum",
	})
	if err != nil {
		return fmt.Errorf("seed run: %w", err)
	}

	if _, err := machine.GenerateVariants(ctx, run.ID); err != nil {
		return fmt.Errorf("seed variants: %w", err)
	}
	if _, _, err := machine.Preview(ctx, run.ID); err != nil {
		return fmt.Errorf("seed preview: %w", err)
	}

	// Enough traffic per variant to clear the sample floor, with B ahead.
	traffic := []struct {
		variant models.VariantLabel
		views   int
		clicks  int
	}{
		{models.VariantA, 120, 12},
		{models.VariantB, 120, 30},
	}
	for _, t := range traffic {
		for i := 0; i < t.views; i++ {
			if err := machine.RecordEvent(ctx, run.ID, t.variant, models.EventView); err != nil {
				return fmt.Errorf("seed events: %w", err)
			}
		}
		for i := 0; i < t.clicks; i++ {
			if err := machine.RecordEvent(ctx, run.ID, t.variant, models.EventClick); err != nil {
				return fmt.Errorf("seed events: %w", err)
			}
		}
	}

	summary, err := machine.SummarizeCTR(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("seed summary: %w", err)
	}

	logger.Info("Seeded run %s (outcome %s, p=%.4f)", run.ID, summary.Outcome, summary.PValue)
	fmt.Println(run.ID)
	return nil
}
