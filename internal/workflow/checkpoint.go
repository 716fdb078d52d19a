package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/persistence"
)

func newCheckpointID(workflowID string, seq uint64) string {
	return fmt.Sprintf("%s-%06d", workflowID, seq)
}

// saveCheckpoint persists the current state before the next node's side
// effects begin (spec.md §4.5, "checkpoint precedes the next node's
// external side effects"), incrementing checkpoint_seq exactly once per
// call.
func (e *Engine) saveCheckpoint(ctx context.Context, plan Plan, state *State, nodeKind NodeKind) error {
	state.CheckpointSeq++
	state.CheckpointID = newCheckpointID(state.WorkflowID, state.CheckpointSeq)
	state.LastCheckpoint = time.Now().UTC()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	cp := persistence.Checkpoint{
		WorkflowID:   state.WorkflowID,
		Seq:          state.CheckpointSeq,
		CheckpointID: state.CheckpointID,
		NodeKind:     string(nodeKind),
		CreatedAt:    state.LastCheckpoint,
		StateJSON:    stateJSON,
	}
	if err := e.store.PutCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}

	md := persistence.WorkflowMetadata{
		WorkflowID: state.WorkflowID,
		PlanName:   state.PlanName,
		Phase:      string(state.Phase),
		Progress:   state.Progress(plan),
		CreatedAt:  state.CreatedAt,
		UpdatedAt:  state.LastCheckpoint,
		LatestSeq:  state.CheckpointSeq,
	}
	return e.store.PutWorkflowMetadata(ctx, md)
}

func loadState(cp persistence.Checkpoint) (State, error) {
	return DecodeState(cp.StateJSON)
}

// DecodeState unmarshals a checkpoint's StateJSON, for external readers
// (the broker's resources/read handler, CLI inspection commands) that need
// a workflow's findings and phase without going through Resume.
func DecodeState(stateJSON []byte) (State, error) {
	var s State
	if err := json.Unmarshal(stateJSON, &s); err != nil {
		return State{}, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return s, nil
}

// checkpoint is the convenience wrapper the run loop calls after every
// cursor movement. A persistence failure is logged, not propagated as a
// workflow failure — the in-memory state remains authoritative for the
// rest of this process's lifetime even if the durable copy lagged.
func (e *Engine) checkpoint(ctx context.Context, plan Plan, state *State, nodeKind NodeKind) {
	if err := e.saveCheckpoint(ctx, plan, state, nodeKind); err != nil {
		e.log.Error("checkpoint failed", "workflow_id", state.WorkflowID, "error", err)
		return
	}
	e.publish(state, events.Event{Kind: events.CheckpointSaved, Value: float64(state.CheckpointSeq)})
}
