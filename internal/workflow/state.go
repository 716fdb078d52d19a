// Package workflow implements the Workflow Orchestration Engine
// (spec.md §4.5): a typed plan of nodes driven by a serializing engine
// loop, with checkpointing, pause/resume, retry, and event emission.
// The state shape is grounded on original_source/safeflow's
// WorkflowState/NodeResult/CheckpointData models, re-expressed as Go
// value types instead of Pydantic models.
package workflow

import (
	"time"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// NodeKind is one of the plan node kinds of spec.md §4.5.
type NodeKind string

const (
	NodeInitialize       NodeKind = "initialize"
	NodeSingleScan       NodeKind = "single_scan"
	NodeParallelScan     NodeKind = "parallel_scan"
	NodeResultCollection NodeKind = "result_collection"
	NodeValidation       NodeKind = "validation"
	NodeHumanReview      NodeKind = "human_review"
	NodeRetry            NodeKind = "retry"
	NodeFinalize         NodeKind = "finalize"
)

// Phase is one state in the workflow's top-level state machine
// (spec.md §4.5, "State machine").
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseRunning   Phase = "RUNNING"
	PhasePaused    Phase = "PAUSED"
	PhaseSucceeded Phase = "SUCCEEDED"
	PhaseFailed    Phase = "FAILED"
	PhaseCanceled  Phase = "CANCELED"
)

// NodeSpec is one entry of a plan: a kind plus the tool_ids it operates
// over (single_scan uses exactly one; parallel_scan uses N; the other
// kinds ignore ToolIDs). Policy carries the validation node's predicates;
// every other kind ignores it.
type NodeSpec struct {
	Kind    NodeKind
	ToolIDs []string
	Policy  *ValidationPolicy
}

// Plan is an ordered sequence of nodes, spec.md §4.5.
type Plan struct {
	Name  string
	Nodes []NodeSpec
}

// NodeResult records one node's execution outcome, grounded on
// NodeResult in original_source/safeflow/orchestration/models.py.
type NodeResult struct {
	NodeIndex  int
	Kind       NodeKind
	Status     Phase
	StartTime  time.Time
	EndTime    time.Time
	RetryCount int
	Error      string
}

// State is the Workflow State of spec.md §3.4: the single mutable value
// the engine's serializing loop owns and mutates.
type State struct {
	WorkflowID   string
	PlanName     string
	Request      scan.Request
	ToolIDs      []string

	Phase        Phase
	Cursor       int
	NodeResults  []NodeResult

	Findings         []finding.Finding
	Errors           []string
	RetryCount       int

	CheckpointSeq    uint64
	CheckpointID     string
	LastCheckpoint   time.Time

	RequiresHumanReview bool
	HumanReviewNote     string

	StartTime time.Time
	EndTime   time.Time

	CreatedBy string
	CreatedAt time.Time
	Tags      []string
}

// Progress reports fractional completion (0..1) based on cursor
// position within the plan's node count.
func (s State) Progress(plan Plan) float64 {
	if len(plan.Nodes) == 0 {
		return 0
	}
	if s.Phase == PhaseSucceeded {
		return 1
	}
	return float64(s.Cursor) / float64(len(plan.Nodes))
}

// IsTerminal reports whether the workflow has reached a phase from
// which the engine will not transition further on its own.
func (s State) IsTerminal() bool {
	switch s.Phase {
	case PhaseSucceeded, PhaseFailed, PhaseCanceled:
		return true
	default:
		return false
	}
}

// Clone returns a deep-enough copy suitable for handing to external
// readers without risking a data race with the engine's owning loop
// (spec.md §5, "external readers obtain a copy through the read API").
func (s State) Clone() State {
	clone := s
	clone.ToolIDs = append([]string(nil), s.ToolIDs...)
	clone.NodeResults = append([]NodeResult(nil), s.NodeResults...)
	clone.Findings = make([]finding.Finding, len(s.Findings))
	for i, f := range s.Findings {
		clone.Findings[i] = f.Clone()
	}
	clone.Errors = append([]string(nil), s.Errors...)
	clone.Tags = append([]string(nil), s.Tags...)
	return clone
}
