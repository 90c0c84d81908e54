package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"landing-ops/backend/pkg/models"
)

// MemoryRunStore is an in-memory implementation of the RunStore interface.
// It backs unit tests and `--store memory` local runs. All methods are safe
// for concurrent use; event and job-log appends contend only on the store
// mutex, never on a per-run lock.
type MemoryRunStore struct {
	mu        sync.Mutex
	runs      map[string]models.Run
	variants  map[string][]models.Variant
	events    map[string][]models.Event
	approvals map[string]models.Approval
	audits    map[string][]models.AuditResult
	exports   map[string]models.ExportArtifact
	jobLogs   map[string][]models.JobLog
	nextEvent int64
	nextLog   int64
}

// NewMemoryRunStore creates a new MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:      make(map[string]models.Run),
		variants:  make(map[string][]models.Variant),
		events:    make(map[string][]models.Event),
		approvals: make(map[string]models.Approval),
		audits:    make(map[string][]models.AuditResult),
		exports:   make(map[string]models.ExportArtifact),
		jobLogs:   make(map[string][]models.JobLog),
	}
}

// CreateRun persists a new run.
func (s *MemoryRunStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return ErrAlreadyExists
	}
	s.runs[run.ID] = *run
	return nil
}

// GetRun retrieves a run by its ID.
func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// UpdateRun overwrites an existing run.
func (s *MemoryRunStore) UpdateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *MemoryRunStore) ListRuns(_ context.Context, filter ListFilter) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Run
	for _, run := range s.runs {
		if filter.Stage != "" && run.Stage != filter.Stage {
			continue
		}
		if filter.Query != "" {
			q := strings.ToLower(filter.Query)
			if !strings.Contains(strings.ToLower(run.MetaTitle), q) &&
				!strings.Contains(strings.ToLower(run.PrimaryKeyword), q) {
				continue
			}
		}
		all = append(all, run)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []*models.Run
	for i := filter.Offset; i < len(all) && len(out) < limit; i++ {
		run := all[i]
		out = append(out, &run)
	}
	return out, nil
}

// ReplaceVariants swaps out a run's variant pair.
func (s *MemoryRunStore) ReplaceVariants(_ context.Context, runID string, variants []*models.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]models.Variant, 0, len(variants))
	for _, v := range variants {
		copied = append(copied, *v)
	}
	sort.Slice(copied, func(i, j int) bool { return copied[i].Label < copied[j].Label })
	s.variants[runID] = copied
	return nil
}

// ListVariants returns a run's variants, A before B.
func (s *MemoryRunStore) ListVariants(_ context.Context, runID string) ([]*models.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Variant
	for i := range s.variants[runID] {
		v := s.variants[runID][i]
		out = append(out, &v)
	}
	return out, nil
}

// AppendEvent appends a traffic event.
func (s *MemoryRunStore) AppendEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	event.ID = s.nextEvent
	s.events[event.RunID] = append(s.events[event.RunID], *event)
	return nil
}

// ListEvents returns a run's events in append order.
func (s *MemoryRunStore) ListEvents(_ context.Context, runID string) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for i := range s.events[runID] {
		e := s.events[runID][i]
		out = append(out, &e)
	}
	return out, nil
}

// CreateApproval stores the run's approval, write-once.
func (s *MemoryRunStore) CreateApproval(_ context.Context, approval *models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.approvals[approval.RunID]; ok {
		return ErrAlreadyExists
	}
	s.approvals[approval.RunID] = *approval
	return nil
}

// GetApproval retrieves the run's approval.
func (s *MemoryRunStore) GetApproval(_ context.Context, runID string) (*models.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// AppendAuditResult appends to the run's audit history.
func (s *MemoryRunStore) AppendAuditResult(_ context.Context, result *models.AuditResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.Seq = len(s.audits[result.RunID]) + 1
	s.audits[result.RunID] = append(s.audits[result.RunID], *result)
	return nil
}

// LatestAuditResult returns the newest audit result for the run.
func (s *MemoryRunStore) LatestAuditResult(_ context.Context, runID string) (*models.AuditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.audits[runID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	r := history[len(history)-1]
	return &r, nil
}

// ListAuditResults returns the full audit history, oldest first.
func (s *MemoryRunStore) ListAuditResults(_ context.Context, runID string) ([]*models.AuditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditResult
	for i := range s.audits[runID] {
		r := s.audits[runID][i]
		out = append(out, &r)
	}
	return out, nil
}

// CreateExportArtifact stores the run's export record.
func (s *MemoryRunStore) CreateExportArtifact(_ context.Context, artifact *models.ExportArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exports[artifact.RunID]; ok {
		return ErrAlreadyExists
	}
	s.exports[artifact.RunID] = *artifact
	return nil
}

// GetExportArtifact retrieves the run's export record.
func (s *MemoryRunStore) GetExportArtifact(_ context.Context, runID string) (*models.ExportArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.exports[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// AppendJobLog appends an operation timeline entry.
func (s *MemoryRunStore) AppendJobLog(_ context.Context, entry *models.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	entry.ID = s.nextLog
	s.jobLogs[entry.RunID] = append(s.jobLogs[entry.RunID], *entry)
	return nil
}

// ListJobLogs returns the newest entries for a run, up to limit.
func (s *MemoryRunStore) ListJobLogs(_ context.Context, runID string, limit int) ([]*models.JobLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	logs := s.jobLogs[runID]
	var out []*models.JobLog
	for i := len(logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := logs[i]
		out = append(out, &l)
	}
	return out, nil
}
