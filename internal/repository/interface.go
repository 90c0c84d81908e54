package repository

import (
	"context"
	"errors"

	"landing-ops/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a write-once record is written twice.
var ErrAlreadyExists = errors.New("already exists")

// ListFilter narrows and pages a run listing.
type ListFilter struct {
	Query  string // substring match on title / primary keyword
	Stage  models.Stage
	Limit  int
	Offset int
}

// RunStore persists runs and their dependent records, keyed by run id.
// The state machine is the only writer of runs, variants, approvals,
// audit results and export artifacts; event appends may come from many
// concurrent preview sessions.
type RunStore interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *models.Run) error
	// GetRun retrieves a run by its ID.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// UpdateRun overwrites an existing run.
	UpdateRun(ctx context.Context, run *models.Run) error
	// ListRuns returns runs matching the filter, newest first.
	ListRuns(ctx context.Context, filter ListFilter) ([]*models.Run, error)

	// ReplaceVariants swaps out a run's variant pair.
	ReplaceVariants(ctx context.Context, runID string, variants []*models.Variant) error
	// ListVariants returns a run's variants, A before B.
	ListVariants(ctx context.Context, runID string) ([]*models.Variant, error)

	// AppendEvent appends a traffic event. Events are immutable once written.
	AppendEvent(ctx context.Context, event *models.Event) error
	// ListEvents returns a run's events in append order.
	ListEvents(ctx context.Context, runID string) ([]*models.Event, error)

	// CreateApproval stores the run's approval. Returns ErrAlreadyExists
	// if the run already has one; approvals are write-once.
	CreateApproval(ctx context.Context, approval *models.Approval) error
	// GetApproval retrieves the run's approval.
	GetApproval(ctx context.Context, runID string) (*models.Approval, error)

	// AppendAuditResult appends to the run's audit history.
	AppendAuditResult(ctx context.Context, result *models.AuditResult) error
	// LatestAuditResult returns the newest audit result for the run.
	LatestAuditResult(ctx context.Context, runID string) (*models.AuditResult, error)
	// ListAuditResults returns the full audit history, oldest first.
	ListAuditResults(ctx context.Context, runID string) ([]*models.AuditResult, error)

	// CreateExportArtifact stores the run's export record.
	CreateExportArtifact(ctx context.Context, artifact *models.ExportArtifact) error
	// GetExportArtifact retrieves the run's export record.
	GetExportArtifact(ctx context.Context, runID string) (*models.ExportArtifact, error)

	// AppendJobLog appends an operation timeline entry.
	AppendJobLog(ctx context.Context, entry *models.JobLog) error
	// ListJobLogs returns the newest entries for a run, up to limit.
	ListJobLogs(ctx context.Context, runID string, limit int) ([]*models.JobLog, error)
}
