// Package pipeline implements the run state machine. Every stage
// transition happens here, under a per-run lock, with the persisted
// record as the single source of truth.
package pipeline

import (
	"fmt"

	"landing-ops/backend/pkg/models"
)

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError rejects an operation called out of lifecycle order.
type StateError struct {
	Op      string
	Stage   models.Stage
	Allowed string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in stage %s (requires %s)", e.Op, e.Stage, e.Allowed)
}

// ConflictError rejects a second write to a write-once record.
type ConflictError struct {
	Op     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Op, e.Reason)
}

// ApprovalBlockedError rejects signing off a variant whose claim screen
// failed. QC hits on their own only annotate a variant; the block applies
// at the sign-off boundary, where publishing intent becomes real.
type ApprovalBlockedError struct {
	Variant models.VariantLabel
	Hits    []string
}

func (e *ApprovalBlockedError) Error() string {
	return fmt.Sprintf("variant %s cannot be approved: unresolved compliance failures %v", e.Variant, e.Hits)
}

// ExportBlockedError rejects an export whose latest audit is not PASS.
type ExportBlockedError struct {
	Verdict  models.Verdict
	Findings []models.Finding
}

func (e *ExportBlockedError) Error() string {
	return fmt.Sprintf("export blocked: latest audit verdict is %s with %d findings", e.Verdict, len(e.Findings))
}

// FixExhaustedError reports that the fix budget is spent while findings
// remain. Findings carries the residue of the latest audit so the caller
// sees what manual revision still has to address.
type FixExhaustedError struct {
	Attempts int
	Budget   int
	Findings []models.Finding
}

func (e *FixExhaustedError) Error() string {
	return fmt.Sprintf("fix budget exhausted (%d/%d attempts) with %d findings remaining; manual revision required",
		e.Attempts, e.Budget, len(e.Findings))
}
