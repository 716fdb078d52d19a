// Package persistence defines the external checkpoint/metadata store
// abstraction (spec.md §6, "external interfaces") that the workflow
// engine treats as an external service with idempotent checkpoint
// writes keyed by (workflow_id, checkpoint_seq). Concrete backends
// live in the filestore and s3store subpackages.
package persistence

import (
	"context"
	"time"
)

// Checkpoint is an immutable snapshot of a workflow's state, grounded
// on CheckpointData in original_source/safeflow/orchestration/models.py.
type Checkpoint struct {
	WorkflowID string
	Seq        uint64
	CheckpointID string
	NodeKind   string
	CreatedAt  time.Time
	// StateJSON is the JSON-encoded workflow.State at the moment of the
	// checkpoint. The store treats it as opaque.
	StateJSON []byte
}

// WorkflowMetadata is the small, frequently-read summary record kept
// alongside full checkpoints so listing workflows does not require
// loading every checkpoint body.
type WorkflowMetadata struct {
	WorkflowID    string
	PlanName      string
	Phase         string
	Progress      float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LatestSeq     uint64
}

// Store is the persistence port the engine depends on. Implementations
// must make PutCheckpoint idempotent for a given (WorkflowID, Seq) pair.
type Store interface {
	PutCheckpoint(ctx context.Context, cp Checkpoint) error
	GetCheckpoint(ctx context.Context, workflowID string, seq uint64) (Checkpoint, error)
	// LatestCheckpoint returns the highest-seq checkpoint for workflowID.
	LatestCheckpoint(ctx context.Context, workflowID string) (Checkpoint, error)
	ListCheckpoints(ctx context.Context, workflowID string) ([]Checkpoint, error)

	PutWorkflowMetadata(ctx context.Context, md WorkflowMetadata) error
	GetWorkflowMetadata(ctx context.Context, workflowID string) (WorkflowMetadata, error)
	ListWorkflows(ctx context.Context) ([]WorkflowMetadata, error)

	DeleteWorkflow(ctx context.Context, workflowID string) error
}

// ErrNotFound is returned by Get* methods when the requested record
// does not exist.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.ID
}
