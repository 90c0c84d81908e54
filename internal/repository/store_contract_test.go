package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landing-ops/backend/pkg/models"
)

// runStoreContract exercises the behavior every RunStore implementation
// must share. Both the memory and postgres tests run it.
func runStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()

	newRun := func(title, keyword string) *models.Run {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &models.Run{
			ID:                 uuid.NewString(),
			Stage:              models.StageCreated,
			MetaTitle:          title,
			MetaDescription:    "desc",
			BodyDraft:          "## Section\n\nBody.",
			PrimaryKeyword:     keyword,
			SupportingKeywords: []string{"even skin tone", "pore care"},
			Intent:             models.IntentPurchase,
			CanonicalURL:       "https://example.com/x",
			CTA:                "Shop now",
			CreatedAt:          now,
			UpdatedAt:          now,
		}
	}

	t.Run("create get update run", func(t *testing.T) {
		run := newRun("Vitamin C Serum Guide", "vitamin c serum")
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.MetaTitle, got.MetaTitle)
		assert.Equal(t, run.SupportingKeywords, got.SupportingKeywords)
		assert.Equal(t, models.StageCreated, got.Stage)

		got.Stage = models.StageGenerated
		got.FixAttempts = 2
		got.FixedPage = &models.Page{MetaTitle: "fixed", BodyHTML: "<p>x</p>", FAQ: []models.FAQItem{{Question: "q", Answer: "a"}}}
		require.NoError(t, store.UpdateRun(ctx, got))

		got, err = store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StageGenerated, got.Stage)
		assert.Equal(t, 2, got.FixAttempts)
		require.NotNil(t, got.FixedPage)
		assert.Equal(t, "fixed", got.FixedPage.MetaTitle)
	})

	t.Run("get missing run", func(t *testing.T) {
		_, err := store.GetRun(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update missing run", func(t *testing.T) {
		err := store.UpdateRun(ctx, newRun("ghost", "ghost"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list runs with filters", func(t *testing.T) {
		first := newRun("Retinol Night Cream Guide", "retinol cream")
		require.NoError(t, store.CreateRun(ctx, first))
		second := newRun("Retinol Serum Comparison", "retinol serum")
		second.Stage = models.StageExported
		second.UpdatedAt = second.UpdatedAt.Add(time.Second)
		require.NoError(t, store.CreateRun(ctx, second))

		runs, err := store.ListRuns(ctx, ListFilter{Query: "retinol", Limit: 10})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		// Newest first.
		assert.Equal(t, second.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, ListFilter{Query: "retinol", Stage: models.StageExported, Limit: 10})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, second.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, ListFilter{Query: "retinol", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, first.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, ListFilter{Query: "no-such-keyword", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("replace and list variants", func(t *testing.T) {
		run := newRun("Variant Holder", "variant holder")
		require.NoError(t, store.CreateRun(ctx, run))

		pair := []*models.Variant{
			{RunID: run.ID, Label: models.VariantB, MetaTitle: "b1", FAQ: []models.FAQItem{{Question: "q", Answer: "a"}},
				QC: &models.QCResult{Grade: models.VerdictPass}, CreatedAt: run.CreatedAt},
			{RunID: run.ID, Label: models.VariantA, MetaTitle: "a1",
				QC: &models.QCResult{Grade: models.VerdictWarn, Hits: []string{"instantly"}}, CreatedAt: run.CreatedAt},
		}
		require.NoError(t, store.ReplaceVariants(ctx, run.ID, pair))

		variants, err := store.ListVariants(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, variants, 2)
		assert.Equal(t, models.VariantA, variants[0].Label)
		assert.Equal(t, models.VariantB, variants[1].Label)
		require.NotNil(t, variants[0].QC)
		assert.Equal(t, []string{"instantly"}, variants[0].QC.Hits)
		assert.Equal(t, []models.FAQItem{{Question: "q", Answer: "a"}}, variants[1].FAQ)

		replacement := []*models.Variant{
			{RunID: run.ID, Label: models.VariantA, MetaTitle: "a2", QC: &models.QCResult{Grade: models.VerdictPass}, CreatedAt: run.CreatedAt},
			{RunID: run.ID, Label: models.VariantB, MetaTitle: "b2", QC: &models.QCResult{Grade: models.VerdictPass}, CreatedAt: run.CreatedAt},
		}
		require.NoError(t, store.ReplaceVariants(ctx, run.ID, replacement))

		variants, err = store.ListVariants(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, variants, 2)
		assert.Equal(t, "a2", variants[0].MetaTitle)
	})

	t.Run("events append in order", func(t *testing.T) {
		run := newRun("Event Holder", "event holder")
		require.NoError(t, store.CreateRun(ctx, run))

		for i, kind := range []models.EventKind{models.EventView, models.EventView, models.EventClick} {
			label := models.VariantA
			if i == 1 {
				label = models.VariantB
			}
			require.NoError(t, store.AppendEvent(ctx, &models.Event{
				RunID: run.ID, Variant: label, Kind: kind, At: time.Now().UTC(),
			}))
		}

		events, err := store.ListEvents(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, models.EventView, events[0].Kind)
		assert.Equal(t, models.VariantB, events[1].Variant)
		assert.Equal(t, models.EventClick, events[2].Kind)
		assert.Less(t, events[0].ID, events[2].ID)
	})

	t.Run("approval is write-once", func(t *testing.T) {
		run := newRun("Approval Holder", "approval holder")
		require.NoError(t, store.CreateRun(ctx, run))

		_, err := store.GetApproval(ctx, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		approval := &models.Approval{
			RunID: run.ID, Variant: models.VariantB, Approver: "casey",
			Method: "manual", ApprovedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.CreateApproval(ctx, approval))

		second := &models.Approval{RunID: run.ID, Variant: models.VariantA, Method: "manual", ApprovedAt: time.Now().UTC()}
		assert.ErrorIs(t, store.CreateApproval(ctx, second), ErrAlreadyExists)

		got, err := store.GetApproval(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VariantB, got.Variant)
		assert.Equal(t, "casey", got.Approver)
	})

	t.Run("audit history sequences", func(t *testing.T) {
		run := newRun("Audit Holder", "audit holder")
		require.NoError(t, store.CreateRun(ctx, run))

		_, err := store.LatestAuditResult(ctx, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		fail := &models.AuditResult{
			RunID: run.ID, Overall: models.VerdictFail, Score: 40,
			Findings:  []models.Finding{{RuleID: "E002", Severity: models.SeverityFail, Message: "banned claim"}},
			Signals:   models.AuditSignals{WordCount: 100},
			AuditedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.AppendAuditResult(ctx, fail))
		assert.Equal(t, 1, fail.Seq)

		pass := &models.AuditResult{
			RunID: run.ID, Overall: models.VerdictPass, Score: 100,
			Signals:   models.AuditSignals{WordCount: 420},
			AuditedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.AppendAuditResult(ctx, pass))
		assert.Equal(t, 2, pass.Seq)

		latest, err := store.LatestAuditResult(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VerdictPass, latest.Overall)
		assert.Equal(t, 2, latest.Seq)

		history, err := store.ListAuditResults(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.VerdictFail, history[0].Overall)
		assert.Equal(t, "E002", history[0].Findings[0].RuleID)
	})

	t.Run("export artifact is write-once", func(t *testing.T) {
		run := newRun("Export Holder", "export holder")
		require.NoError(t, store.CreateRun(ctx, run))

		_, err := store.GetExportArtifact(ctx, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		artifact := &models.ExportArtifact{
			RunID: run.ID, Path: "exports/" + run.ID + ".html",
			SHA256: "abc123", Bytes: 2048, CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.CreateExportArtifact(ctx, artifact))
		assert.ErrorIs(t, store.CreateExportArtifact(ctx, artifact), ErrAlreadyExists)

		got, err := store.GetExportArtifact(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "abc123", got.SHA256)
		assert.Equal(t, 2048, got.Bytes)
	})

	t.Run("job logs newest first", func(t *testing.T) {
		run := newRun("Log Holder", "log holder")
		require.NoError(t, store.CreateRun(ctx, run))

		for _, job := range []string{"create", "generate", "audit"} {
			require.NoError(t, store.AppendJobLog(ctx, &models.JobLog{
				RunID: run.ID, Job: job, Status: "ok", ElapsedMS: 5,
				Detail: map[string]any{"job": job}, At: time.Now().UTC(),
			}))
		}

		logs, err := store.ListJobLogs(ctx, run.ID, 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "audit", logs[0].Job)
		assert.Equal(t, "generate", logs[1].Job)
	})
}
