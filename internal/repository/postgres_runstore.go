package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"landing-ops/backend/pkg/models"
)

// PostgresRunStore is a PostgreSQL implementation of the RunStore interface.
type PostgresRunStore struct {
	db *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresRunStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			meta_title TEXT NOT NULL DEFAULT '',
			meta_description TEXT NOT NULL DEFAULT '',
			body_draft TEXT NOT NULL DEFAULT '',
			primary_keyword TEXT NOT NULL DEFAULT '',
			supporting_keywords JSONB NOT NULL DEFAULT '[]',
			intent TEXT NOT NULL DEFAULT 'purchase',
			canonical_url TEXT NOT NULL DEFAULT '',
			cta TEXT NOT NULL DEFAULT '',
			buy_url TEXT NOT NULL DEFAULT '',
			fixed_page JSONB,
			fix_attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
		CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at);

		CREATE TABLE IF NOT EXISTS variants (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			label TEXT NOT NULL,
			meta_title TEXT NOT NULL DEFAULT '',
			meta_description TEXT NOT NULL DEFAULT '',
			hero_headline TEXT NOT NULL DEFAULT '',
			hero_sub TEXT NOT NULL DEFAULT '',
			cta TEXT NOT NULL DEFAULT '',
			faq JSONB NOT NULL DEFAULT '[]',
			qc JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, label)
		);

		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			variant TEXT NOT NULL,
			kind TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_run_variant ON events(run_id, variant);

		CREATE TABLE IF NOT EXISTS approvals (
			run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
			variant TEXT NOT NULL,
			approver TEXT NOT NULL,
			method TEXT NOT NULL,
			approved_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			overall TEXT NOT NULL,
			score INT NOT NULL,
			findings JSONB NOT NULL DEFAULT '[]',
			signals JSONB NOT NULL DEFAULT '{}',
			audited_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS export_artifacts (
			run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			bytes INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS job_logs (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			job TEXT NOT NULL,
			status TEXT NOT NULL,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			detail JSONB NOT NULL DEFAULT '{}',
			at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_job_logs_run_id ON job_logs(run_id);
	`)
	return err
}

// CreateRun persists a new run.
func (s *PostgresRunStore) CreateRun(ctx context.Context, run *models.Run) error {
	kw, err := json.Marshal(run.SupportingKeywords)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO runs
		(id, stage, meta_title, meta_description, body_draft, primary_keyword,
		 supporting_keywords, intent, canonical_url, cta, buy_url, fix_attempts,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		run.ID, run.Stage, run.MetaTitle, run.MetaDescription, run.BodyDraft,
		run.PrimaryKeyword, kw, run.Intent, run.CanonicalURL, run.CTA,
		run.BuyURL, run.FixAttempts, run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRun retrieves a run by its ID.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRow(ctx, `SELECT id, stage, meta_title, meta_description,
		body_draft, primary_keyword, supporting_keywords, intent, canonical_url,
		cta, buy_url, fixed_page, fix_attempts, created_at, updated_at
		FROM runs WHERE id = $1`, id)
	return scanRun(row)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	var kw []byte
	var fixed []byte
	err := row.Scan(&run.ID, &run.Stage, &run.MetaTitle, &run.MetaDescription,
		&run.BodyDraft, &run.PrimaryKeyword, &kw, &run.Intent, &run.CanonicalURL,
		&run.CTA, &run.BuyURL, &fixed, &run.FixAttempts, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(kw, &run.SupportingKeywords); err != nil {
		return nil, fmt.Errorf("decode supporting keywords: %w", err)
	}
	if len(fixed) > 0 {
		run.FixedPage = &models.Page{}
		if err := json.Unmarshal(fixed, run.FixedPage); err != nil {
			return nil, fmt.Errorf("decode fixed page: %w", err)
		}
	}
	return &run, nil
}

// UpdateRun overwrites an existing run.
func (s *PostgresRunStore) UpdateRun(ctx context.Context, run *models.Run) error {
	kw, err := json.Marshal(run.SupportingKeywords)
	if err != nil {
		return err
	}
	var fixed []byte
	if run.FixedPage != nil {
		fixed, err = json.Marshal(run.FixedPage)
		if err != nil {
			return err
		}
	}
	tag, err := s.db.Exec(ctx, `UPDATE runs SET stage=$2, meta_title=$3,
		meta_description=$4, body_draft=$5, primary_keyword=$6,
		supporting_keywords=$7, intent=$8, canonical_url=$9, cta=$10,
		buy_url=$11, fixed_page=$12, fix_attempts=$13, updated_at=$14
		WHERE id=$1`,
		run.ID, run.Stage, run.MetaTitle, run.MetaDescription, run.BodyDraft,
		run.PrimaryKeyword, kw, run.Intent, run.CanonicalURL, run.CTA,
		run.BuyURL, fixed, run.FixAttempts, run.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *PostgresRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]*models.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	sql := `SELECT id, stage, meta_title, meta_description, body_draft,
		primary_keyword, supporting_keywords, intent, canonical_url, cta,
		buy_url, fixed_page, fix_attempts, created_at, updated_at FROM runs`
	args := []any{}
	where := ""
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = fmt.Sprintf(" WHERE (meta_title ILIKE $%d OR primary_keyword ILIKE $%d)", len(args), len(args))
	}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		if where == "" {
			where = fmt.Sprintf(" WHERE stage = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND stage = $%d", len(args))
		}
	}
	args = append(args, limit, filter.Offset)
	sql += where + fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ReplaceVariants swaps out a run's variant pair.
func (s *PostgresRunStore) ReplaceVariants(ctx context.Context, runID string, variants []*models.Variant) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM variants WHERE run_id = $1", runID); err != nil {
		return err
	}
	for _, v := range variants {
		faq, err := json.Marshal(v.FAQ)
		if err != nil {
			return err
		}
		var qc []byte
		if v.QC != nil {
			qc, err = json.Marshal(v.QC)
			if err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `INSERT INTO variants
			(run_id, label, meta_title, meta_description, hero_headline, hero_sub,
			 cta, faq, qc, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			v.RunID, v.Label, v.MetaTitle, v.MetaDescription, v.HeroHeadline,
			v.HeroSub, v.CTA, faq, qc, v.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListVariants returns a run's variants, A before B.
func (s *PostgresRunStore) ListVariants(ctx context.Context, runID string) ([]*models.Variant, error) {
	rows, err := s.db.Query(ctx, `SELECT run_id, label, meta_title,
		meta_description, hero_headline, hero_sub, cta, faq, qc, created_at
		FROM variants WHERE run_id = $1 ORDER BY label`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []*models.Variant
	for rows.Next() {
		var v models.Variant
		var faq, qc []byte
		err := rows.Scan(&v.RunID, &v.Label, &v.MetaTitle, &v.MetaDescription,
			&v.HeroHeadline, &v.HeroSub, &v.CTA, &faq, &qc, &v.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(faq, &v.FAQ); err != nil {
			return nil, fmt.Errorf("decode faq: %w", err)
		}
		if len(qc) > 0 {
			v.QC = &models.QCResult{}
			if err := json.Unmarshal(qc, v.QC); err != nil {
				return nil, fmt.Errorf("decode qc: %w", err)
			}
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

// AppendEvent appends a traffic event.
func (s *PostgresRunStore) AppendEvent(ctx context.Context, event *models.Event) error {
	return s.db.QueryRow(ctx, `INSERT INTO events (run_id, variant, kind, at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		event.RunID, event.Variant, event.Kind, event.At).Scan(&event.ID)
}

// ListEvents returns a run's events in append order.
func (s *PostgresRunStore) ListEvents(ctx context.Context, runID string) ([]*models.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT id, run_id, variant, kind, at
		FROM events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.RunID, &e.Variant, &e.Kind, &e.At); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CreateApproval stores the run's approval. The primary key on run_id makes
// the write-once property hold across processes, not just behind the
// machine's run lock.
func (s *PostgresRunStore) CreateApproval(ctx context.Context, approval *models.Approval) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO approvals
		(run_id, variant, approver, method, approved_at)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (run_id) DO NOTHING`,
		approval.RunID, approval.Variant, approval.Approver, approval.Method, approval.ApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetApproval retrieves the run's approval.
func (s *PostgresRunStore) GetApproval(ctx context.Context, runID string) (*models.Approval, error) {
	var a models.Approval
	err := s.db.QueryRow(ctx, `SELECT run_id, variant, approver, method, approved_at
		FROM approvals WHERE run_id = $1`, runID).
		Scan(&a.RunID, &a.Variant, &a.Approver, &a.Method, &a.ApprovedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// AppendAuditResult appends to the run's audit history.
func (s *PostgresRunStore) AppendAuditResult(ctx context.Context, result *models.AuditResult) error {
	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return err
	}
	signals, err := json.Marshal(result.Signals)
	if err != nil {
		return err
	}
	return s.db.QueryRow(ctx, `INSERT INTO audit_results
		(run_id, seq, overall, score, findings, signals, audited_at)
		VALUES ($1, (SELECT COALESCE(MAX(seq),0)+1 FROM audit_results WHERE run_id=$1),
		        $2, $3, $4, $5, $6)
		RETURNING seq`,
		result.RunID, result.Overall, result.Score, findings, signals, result.AuditedAt).
		Scan(&result.Seq)
}

// LatestAuditResult returns the newest audit result for the run.
func (s *PostgresRunStore) LatestAuditResult(ctx context.Context, runID string) (*models.AuditResult, error) {
	row := s.db.QueryRow(ctx, `SELECT run_id, seq, overall, score, findings,
		signals, audited_at FROM audit_results
		WHERE run_id = $1 ORDER BY seq DESC LIMIT 1`, runID)
	return scanAuditResult(row)
}

// ListAuditResults returns the full audit history, oldest first.
func (s *PostgresRunStore) ListAuditResults(ctx context.Context, runID string) ([]*models.AuditResult, error) {
	rows, err := s.db.Query(ctx, `SELECT run_id, seq, overall, score, findings,
		signals, audited_at FROM audit_results WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.AuditResult
	for rows.Next() {
		r, err := scanAuditResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanAuditResult(row pgx.Row) (*models.AuditResult, error) {
	var r models.AuditResult
	var findings, signals []byte
	err := row.Scan(&r.RunID, &r.Seq, &r.Overall, &r.Score, &findings, &signals, &r.AuditedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(findings, &r.Findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	if err := json.Unmarshal(signals, &r.Signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return &r, nil
}

// CreateExportArtifact stores the run's export record.
func (s *PostgresRunStore) CreateExportArtifact(ctx context.Context, artifact *models.ExportArtifact) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO export_artifacts
		(run_id, path, sha256, bytes, created_at)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (run_id) DO NOTHING`,
		artifact.RunID, artifact.Path, artifact.SHA256, artifact.Bytes, artifact.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetExportArtifact retrieves the run's export record.
func (s *PostgresRunStore) GetExportArtifact(ctx context.Context, runID string) (*models.ExportArtifact, error) {
	var a models.ExportArtifact
	err := s.db.QueryRow(ctx, `SELECT run_id, path, sha256, bytes, created_at
		FROM export_artifacts WHERE run_id = $1`, runID).
		Scan(&a.RunID, &a.Path, &a.SHA256, &a.Bytes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// AppendJobLog appends an operation timeline entry.
func (s *PostgresRunStore) AppendJobLog(ctx context.Context, entry *models.JobLog) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return err
	}
	return s.db.QueryRow(ctx, `INSERT INTO job_logs (run_id, job, status, elapsed_ms, detail, at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		entry.RunID, entry.Job, entry.Status, entry.ElapsedMS, detail, entry.At).
		Scan(&entry.ID)
}

// ListJobLogs returns the newest entries for a run, up to limit.
func (s *PostgresRunStore) ListJobLogs(ctx context.Context, runID string, limit int) ([]*models.JobLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, run_id, job, status, elapsed_ms, detail, at
		FROM job_logs WHERE run_id = $1 ORDER BY id DESC LIMIT $2`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.JobLog
	for rows.Next() {
		var l models.JobLog
		var detail []byte
		if err := rows.Scan(&l.ID, &l.RunID, &l.Job, &l.Status, &l.ElapsedMS, &detail, &l.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detail, &l.Detail); err != nil {
			return nil, fmt.Errorf("decode detail: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
