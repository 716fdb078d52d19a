package workflow

import (
	"context"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/aggregate"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scheduler"
	"github.com/scanio-git/orchestrator/internal/severity"
	"github.com/scanio-git/orchestrator/internal/triage"
)

// ValidationPolicy is the set of predicates a validation node applies to
// the accumulated findings, spec.md §4.5 point 5 ("severity floor, CWE
// inclusion/exclusion"). A finding failing any configured predicate is
// tagged, never removed, per spec.md's "mark non-conformant findings".
type ValidationPolicy struct {
	SeverityFloor severity.Level
	IncludeCWEs   []int
	ExcludeCWEs   []int
}

func (p ValidationPolicy) conforms(f finding.Finding) bool {
	if p.SeverityFloor != "" && severity.Rank(f.Severity.Level) < severity.Rank(p.SeverityFloor) {
		return false
	}
	if len(p.IncludeCWEs) > 0 && !containsInt(p.IncludeCWEs, f.VulnerabilityType.CWEID) {
		return false
	}
	if containsInt(p.ExcludeCWEs, f.VulnerabilityType.CWEID) {
		return false
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// runInitialize validates the request, confirms every declared tool_id is
// registered, and emits workflow_started (spec.md §4.5 point 1).
func (e *Engine) runInitialize(state *State) error {
	if err := state.Request.Validate(); err != nil {
		return &orcherrors.InvalidInput{Reason: err.Error()}
	}
	for _, toolID := range state.ToolIDs {
		if _, ok := e.reg.Lookup(toolID); !ok {
			return &orcherrors.ToolMissing{ToolID: toolID, Detail: "not registered"}
		}
	}
	e.publish(state, events.Event{Kind: events.WorkflowStarted})
	return nil
}

// runSingleScan runs exactly one tool adapter; the node fails if its task
// fails fatally (spec.md §7, "single_scan fails if its task fails").
func (e *Engine) runSingleScan(ctx context.Context, state *State, node NodeSpec) error {
	if len(node.ToolIDs) != 1 {
		return &orcherrors.InvalidInput{Reason: "single_scan requires exactly one tool_id"}
	}
	results := e.sched.RunAll(ctx, []scheduler.Task{e.toolTask(state, node.ToolIDs[0])})
	return e.absorbScanResults(state, results, false)
}

// runParallelScan runs N tool adapters under the Scheduler. It succeeds if
// at least one task produced results and fails only if every task failed
// fatally (spec.md §7, "parallel_scan collects outcomes ... fails only if
// all tasks failed fatally").
func (e *Engine) runParallelScan(ctx context.Context, state *State, node NodeSpec) error {
	tasks := make([]scheduler.Task, len(node.ToolIDs))
	for i, toolID := range node.ToolIDs {
		tasks[i] = e.toolTask(state, toolID)
	}
	results := e.sched.RunAll(ctx, tasks)
	return e.absorbScanResults(state, results, true)
}

// absorbScanResults appends every task's findings to state and decides the
// node outcome. tolerant=true implements parallel_scan's "at least one
// success" contract; tolerant=false implements single_scan's "the one task
// must succeed" contract.
func (e *Engine) absorbScanResults(state *State, results []scheduler.Result, tolerant bool) error {
	succeeded := 0
	var lastErr error
	var canceled bool
	for _, r := range results {
		if len(r.Findings) > 0 {
			state.Findings = append(state.Findings, r.Findings...)
		}
		if r.Canceled {
			canceled = true
			continue
		}
		if r.Err == nil {
			succeeded++
		} else {
			lastErr = r.Err
		}
	}
	if canceled {
		return &orcherrors.Canceled{Reason: "scan task canceled"}
	}
	if !tolerant && lastErr != nil {
		return lastErr
	}
	if succeeded == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// toolTask wraps one tool_id's execution as a scheduler.Task, publishing
// tool_started/tool_finished around the framework's validate-execute-parse
// orchestration (adapter.Run).
func (e *Engine) toolTask(state *State, toolID string) scheduler.Task {
	return scheduler.Task{
		ID: toolID,
		Run: func(ctx context.Context) ([]finding.Finding, error) {
			a, release, err := e.reg.Acquire(toolID)
			if err != nil {
				return nil, &orcherrors.ToolMissing{ToolID: toolID, Detail: err.Error()}
			}
			defer release()

			e.publish(state, events.Event{Kind: events.ToolStarted, ToolID: toolID})
			ec := adapter.ExecutionContext{NetworkAllowed: state.Request.NetworkAllowed}
			findings, _, err := adapter.Run(ctx, a, state.Request, ec, e.workflowSink(state))
			status := "success"
			if err != nil {
				status = "failed"
			}
			e.publish(state, events.Event{Kind: events.ToolFinished, ToolID: toolID, Status: status})
			return findings, err
		},
	}
}

// runResultCollection merges findings from every scan node so far
// (spec.md §4.6).
func (e *Engine) runResultCollection(state *State) error {
	state.Findings = aggregate.Merge(state.Findings)
	return nil
}

// runValidation applies node's policy predicates, tagging non-conformant
// findings without removing them (spec.md §4.5 point 5), then hands
// CRITICAL/HIGH findings to the optional triage step (spec.md §10). A
// missing or failing triager never fails the node: triage is additive.
func (e *Engine) runValidation(ctx context.Context, state *State, node NodeSpec) error {
	if node.Policy != nil {
		for i := range state.Findings {
			if !node.Policy.conforms(state.Findings[i]) {
				state.Findings[i].AddTag("non_conformant")
			}
		}
	}
	triage.Annotate(ctx, e.triager, state.Findings, e.log)
	return nil
}

// runRetry re-runs the immediately preceding scan node under the engine's
// stricter retry policy (spec.md §4.5 point 7).
func (e *Engine) runRetry(ctx context.Context, plan Plan, state *State) error {
	prevIdx := previousScanNodeIndex(plan, state.Cursor)
	if prevIdx < 0 {
		return &orcherrors.InvalidInput{Reason: "retry node has no preceding scan node"}
	}
	node := plan.Nodes[prevIdx]
	tasks := make([]scheduler.Task, len(node.ToolIDs))
	for i, toolID := range node.ToolIDs {
		tasks[i] = e.toolTask(state, toolID)
	}
	results := e.strictSched.RunAll(ctx, tasks)
	return e.absorbScanResults(state, results, node.Kind == NodeParallelScan)
}

func previousScanNodeIndex(plan Plan, cursor int) int {
	for i := cursor - 1; i >= 0; i-- {
		switch plan.Nodes[i].Kind {
		case NodeSingleScan, NodeParallelScan:
			return i
		}
	}
	return -1
}

// runFinalize produces the deterministically sorted finding list external
// callers observe (spec.md §4.6, "Sort order of the emitted list").
func (e *Engine) runFinalize(state *State) error {
	state.Findings = aggregate.Sort(state.Findings)
	return nil
}
