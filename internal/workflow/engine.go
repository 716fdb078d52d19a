package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/persistence"
	"github.com/scanio-git/orchestrator/internal/registry"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/scheduler"
	"github.com/scanio-git/orchestrator/internal/triage"
)

// Engine is the single-threaded-per-workflow runtime that advances a
// State through a Plan's nodes (spec.md §4.5, §5 "engine is
// single-threaded per workflow"). It owns no global state; every
// dependency is an explicit handle passed in at construction, per
// spec.md §9's "no global singletons" note.
type Engine struct {
	store       persistence.Store
	reg         *registry.Registry
	sched       *scheduler.Scheduler
	strictSched *scheduler.Scheduler
	sink        events.Sink
	log         hclog.Logger
	triager     triage.Triager
}

// WithTriager attaches an optional LLM-assisted triage step to validation
// nodes (spec.md §10's supplemented triage feature). A nil triager (the
// zero value) leaves validation exactly as it behaves without this call.
func (e *Engine) WithTriager(t triage.Triager) *Engine {
	e.triager = t
	return e
}

// NewEngine wires an Engine. sched drives ordinary single_scan/
// parallel_scan nodes; a second, stricter scheduler is derived for retry
// nodes (MaxParallel 1, no further retries, a shorter per-task timeout),
// since spec.md §4.5 requires retry to run "under a stricter retry
// policy" and Config carries no method to derive one from an existing
// Scheduler at runtime.
func NewEngine(store persistence.Store, reg *registry.Registry, sched *scheduler.Scheduler, sink events.Sink, log hclog.Logger) *Engine {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	strict := scheduler.New(scheduler.Config{
		MaxParallel:    1,
		PerTaskTimeout: 2 * time.Minute,
		MaxRetries:     0,
	}, log)
	return &Engine{store: store, reg: reg, sched: sched, strictSched: strict, sink: sink, log: log}
}

// Start creates a fresh State for workflowID and runs it to completion or
// to its first pause/cancellation point.
func (e *Engine) Start(ctx context.Context, plan Plan, workflowID string, req scan.Request, toolIDs []string) (State, error) {
	state := &State{
		WorkflowID: workflowID,
		PlanName:   plan.Name,
		Request:    req,
		ToolIDs:    toolIDs,
		Phase:      PhasePending,
		CreatedAt:  time.Now().UTC(),
	}
	e.run(ctx, plan, state)
	return state.Clone(), nil
}

// Resume restores a workflow at the checkpoint identified by seq (0 means
// "the latest checkpoint", since checkpoint_seq starts at 1) and, if the
// restored phase is PAUSED, transitions it back to RUNNING before
// re-entering the run loop at the restored cursor (spec.md §4.5,
// "resume(workflow_id, checkpoint_id?)"). annotation is the optional
// payload spec.md §4.5 point 6 lets a caller attach to a human_review
// pause; when the checkpoint is paused awaiting that review, the first
// value (if any) is recorded as the review note and the cursor advances
// past the reviewed node so it does not re-execute.
func (e *Engine) Resume(ctx context.Context, plan Plan, workflowID string, seq uint64, annotation ...string) (State, error) {
	var cp persistence.Checkpoint
	var err error
	if seq == 0 {
		cp, err = e.store.LatestCheckpoint(ctx, workflowID)
	} else {
		cp, err = e.store.GetCheckpoint(ctx, workflowID, seq)
	}
	if err != nil {
		return State{}, fmt.Errorf("resume %s: %w", workflowID, err)
	}

	state, err := loadState(cp)
	if err != nil {
		return State{}, err
	}
	if state.Phase == PhasePaused {
		if state.RequiresHumanReview && state.Cursor < len(plan.Nodes) && plan.Nodes[state.Cursor].Kind == NodeHumanReview {
			if len(annotation) > 0 {
				state.HumanReviewNote = annotation[0]
			}
			state.RequiresHumanReview = false
			state.Cursor++
		}
		state.Phase = PhaseRunning
		e.publish(&state, events.Event{Kind: events.Resumed})
	}
	e.run(ctx, plan, &state)
	return state.Clone(), nil
}

// run is the serializing per-workflow loop: it advances state.Cursor one
// node at a time, checkpointing after every successful movement and
// stopping at the first pause, cancellation, or terminal outcome
// (spec.md §4.5 "State machine", §5 "single-threaded per workflow").
func (e *Engine) run(ctx context.Context, plan Plan, state *State) {
	if state.Phase == PhasePending {
		state.Phase = PhaseRunning
		state.StartTime = time.Now().UTC()
	}

	for state.Cursor < len(plan.Nodes) {
		if ctx.Err() != nil {
			state.Phase = PhaseCanceled
			state.Errors = append(state.Errors, (&orcherrors.Canceled{Reason: ctx.Err().Error()}).Error())
			e.checkpoint(ctx, plan, state, plan.Nodes[state.Cursor].Kind)
			e.publish(state, events.Event{Kind: events.WorkflowFinished, Status: string(state.Phase)})
			return
		}

		idx := state.Cursor
		node := plan.Nodes[idx]
		startedAt := time.Now().UTC()
		e.publish(state, events.Event{Kind: events.NodeStarted, NodeKind: string(node.Kind), NodeIndex: idx})

		result := e.runNode(ctx, plan, state, node, idx)
		result.NodeIndex = idx
		result.Kind = node.Kind
		result.StartTime = startedAt
		result.EndTime = time.Now().UTC()
		state.NodeResults = append(state.NodeResults, result)
		e.publish(state, events.Event{Kind: events.NodeFinished, NodeKind: string(node.Kind), NodeIndex: idx, Status: string(result.Status)})

		switch result.Status {
		case PhaseFailed:
			state.Phase = PhaseFailed
			state.Errors = append(state.Errors, result.Error)
			e.checkpoint(ctx, plan, state, node.Kind)
			e.publish(state, events.Event{Kind: events.WorkflowFinished, Status: string(state.Phase)})
			return
		case PhaseCanceled:
			state.Phase = PhaseCanceled
			state.Errors = append(state.Errors, result.Error)
			e.checkpoint(ctx, plan, state, node.Kind)
			e.publish(state, events.Event{Kind: events.WorkflowFinished, Status: string(state.Phase)})
			return
		case PhasePaused:
			state.Phase = PhasePaused
			e.checkpoint(ctx, plan, state, node.Kind)
			e.publish(state, events.Event{Kind: events.Paused, NodeKind: string(node.Kind), NodeIndex: idx})
			return
		default:
			state.Cursor++
			e.checkpoint(ctx, plan, state, node.Kind)
			e.publish(state, events.Event{Kind: events.Progress, Value: state.Progress(plan)})
		}
	}

	state.Phase = PhaseSucceeded
	state.EndTime = time.Now().UTC()
	e.checkpoint(ctx, plan, state, NodeFinalize)
	e.publish(state, events.Event{Kind: events.WorkflowFinished, Status: string(state.Phase)})
}

// runNode dispatches to the per-kind runner and folds its error, if any,
// into a NodeResult. human_review is the sole kind that pauses the
// workflow rather than succeeding or failing outright.
func (e *Engine) runNode(ctx context.Context, plan Plan, state *State, node NodeSpec, idx int) NodeResult {
	var err error
	status := PhaseSucceeded

	switch node.Kind {
	case NodeInitialize:
		err = e.runInitialize(state)
	case NodeSingleScan:
		err = e.runSingleScan(ctx, state, node)
	case NodeParallelScan:
		err = e.runParallelScan(ctx, state, node)
	case NodeResultCollection:
		err = e.runResultCollection(state)
	case NodeValidation:
		err = e.runValidation(ctx, state, node)
	case NodeHumanReview:
		state.RequiresHumanReview = true
		status = PhasePaused
	case NodeRetry:
		err = e.runRetry(ctx, plan, state)
	case NodeFinalize:
		err = e.runFinalize(state)
	default:
		err = &orcherrors.InvalidInput{Reason: fmt.Sprintf("unknown node kind %q", node.Kind)}
	}

	if err != nil {
		if _, ok := err.(*orcherrors.Canceled); ok || ctx.Err() != nil {
			return NodeResult{Status: PhaseCanceled, Error: err.Error()}
		}
		return NodeResult{Status: PhaseFailed, Error: err.Error()}
	}
	return NodeResult{Status: status}
}

// publish stamps e onto state's workflow id before handing it to the
// configured sink, so every event this engine emits — including those
// produced deep inside adapter.Run, which knows nothing about workflows
// — carries the correct WorkflowID.
func (e *Engine) publish(state *State, ev events.Event) {
	ev.WorkflowID = state.WorkflowID
	e.sink.Publish(ev)
}

// workflowSink returns an events.Sink that stamps state's workflow id
// onto every event, for handing to adapter.Run.
func (e *Engine) workflowSink(state *State) events.Sink {
	return workflowSink{workflowID: state.WorkflowID, inner: e.sink}
}

type workflowSink struct {
	workflowID string
	inner      events.Sink
}

func (w workflowSink) Publish(e events.Event) {
	if e.WorkflowID == "" {
		e.WorkflowID = w.workflowID
	}
	w.inner.Publish(e)
}
