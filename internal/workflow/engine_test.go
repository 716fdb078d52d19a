package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/persistence"
	"github.com/scanio-git/orchestrator/internal/registry"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/scheduler"
	"github.com/scanio-git/orchestrator/internal/severity"
	"github.com/scanio-git/orchestrator/internal/workflow"
	"github.com/scanio-git/orchestrator/internal/workflow/template"
)

// memStore is a minimal in-memory persistence.Store for exercising the
// engine without a filesystem or network dependency.
type memStore struct {
	mu          sync.Mutex
	checkpoints map[string][]persistence.Checkpoint
	metadata    map[string]persistence.WorkflowMetadata
}

func newMemStore() *memStore {
	return &memStore{
		checkpoints: make(map[string][]persistence.Checkpoint),
		metadata:    make(map[string]persistence.WorkflowMetadata),
	}
}

func (m *memStore) PutCheckpoint(_ context.Context, cp persistence.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.WorkflowID] = append(m.checkpoints[cp.WorkflowID], cp)
	return nil
}

func (m *memStore) GetCheckpoint(_ context.Context, workflowID string, seq uint64) (persistence.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.checkpoints[workflowID] {
		if cp.Seq == seq {
			return cp, nil
		}
	}
	return persistence.Checkpoint{}, &persistence.ErrNotFound{Kind: "checkpoint", ID: workflowID}
}

func (m *memStore) LatestCheckpoint(_ context.Context, workflowID string) (persistence.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.checkpoints[workflowID]
	if len(list) == 0 {
		return persistence.Checkpoint{}, &persistence.ErrNotFound{Kind: "checkpoint", ID: workflowID}
	}
	return list[len(list)-1], nil
}

func (m *memStore) ListCheckpoints(_ context.Context, workflowID string) ([]persistence.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]persistence.Checkpoint(nil), m.checkpoints[workflowID]...), nil
}

func (m *memStore) PutWorkflowMetadata(_ context.Context, md persistence.WorkflowMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[md.WorkflowID] = md
	return nil
}

func (m *memStore) GetWorkflowMetadata(_ context.Context, workflowID string) (persistence.WorkflowMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.metadata[workflowID]
	if !ok {
		return persistence.WorkflowMetadata{}, &persistence.ErrNotFound{Kind: "workflow", ID: workflowID}
	}
	return md, nil
}

func (m *memStore) ListWorkflows(_ context.Context) ([]persistence.WorkflowMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.WorkflowMetadata, 0, len(m.metadata))
	for _, md := range m.metadata {
		out = append(out, md)
	}
	return out, nil
}

func (m *memStore) DeleteWorkflow(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, workflowID)
	delete(m.metadata, workflowID)
	return nil
}

// recordingSink collects every published event for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

// fakeAdapter is a scriptable adapter.Adapter used to drive engine node
// outcomes without invoking any real scanner binary.
type fakeAdapter struct {
	toolID   string
	category capability.Category
	run      func(ctx context.Context) ([]finding.Finding, error)
	block    chan struct{} // if non-nil, Execute waits on this before returning
}

func (a *fakeAdapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:   a.toolID,
		ToolName: a.toolID,
		Category: a.category,
		InputRequirements: capability.InputRequirements{
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetLocalPath, capability.TargetGitRepo},
		},
		Execution: capability.Execution{DefaultTimeoutSeconds: 60},
	}
}

func (a *fakeAdapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *fakeAdapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return adapter.NativeOutput{}, &orcherrors.Timeout{AfterSeconds: 1}
		}
	}
	return adapter.NativeOutput{Payload: []byte("ok")}, nil
}

func (a *fakeAdapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	if a.run == nil {
		return nil, nil
	}
	return a.run(context.Background())
}

func mkFinding(id, path string, level severity.Level) finding.Finding {
	return finding.Finding{
		FindingID:     id,
		VulnerabilityType: finding.VulnerabilityType{Name: "issue"},
		Location:      finding.Location{FilePath: path, LineStart: 1},
		Severity:      finding.Severity{Level: level},
		SourceTool:    []finding.SourceTool{{ToolID: "t"}},
	}
}

func succeedingAdapter(toolID string, findings ...finding.Finding) *fakeAdapter {
	return &fakeAdapter{
		toolID:   toolID,
		category: capability.CategorySAST,
		run:      func(context.Context) ([]finding.Finding, error) { return findings, nil },
	}
}

func failingAdapter(toolID string, err error) *fakeAdapter {
	return &fakeAdapter{
		toolID:   toolID,
		category: capability.CategorySAST,
		run:      func(context.Context) ([]finding.Finding, error) { return nil, err },
	}
}

func newRequest() scan.Request {
	return scan.Request{
		ScanID: "scan-1",
		Target: scan.Target{Kind: capability.TargetLocalPath, Path: "/tmp/repo"},
	}
}

func TestCodeCommitCleanRunSucceeds(t *testing.T) {
	reg := registry.New()
	a := succeedingAdapter("semgrep", mkFinding("f1", "a.py", severity.High))
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	sink := &recordingSink{}
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), sink, nil)

	plan := template.CodeCommit("semgrep")
	state, err := eng.Start(context.Background(), plan, "wf-1", newRequest(), []string{"semgrep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (errors: %v)", state.Phase, state.Errors)
	}
	if len(state.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(state.Findings))
	}

	md, err := store.GetWorkflowMetadata(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if md.Progress != 1 {
		t.Fatalf("expected final progress 1, got %f", md.Progress)
	}
}

func TestCheckpointSeqIsMonotonicPerCursorMovement(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("semgrep"))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.CodeCommit("semgrep")
	if _, err := eng.Start(context.Background(), plan, "wf-2", newRequest(), []string{"semgrep"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	cps, err := store.ListCheckpoints(context.Background(), "wf-2")
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(cps) != len(plan.Nodes) {
		t.Fatalf("expected one checkpoint per node (%d), got %d", len(plan.Nodes), len(cps))
	}
	for i, cp := range cps {
		if cp.Seq != uint64(i+1) {
			t.Fatalf("checkpoint %d: expected seq %d, got %d", i, i+1, cp.Seq)
		}
	}
}

func TestParallelScanSucceedsIfAtLeastOneToolSucceeds(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("good", mkFinding("f1", "a.py", severity.Medium)))
	_ = reg.Register(failingAdapter("bad", &orcherrors.ParseError{Detail: "boom"}))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.EmergencyVuln([]string{"good", "bad"}, nil)
	state, err := eng.Start(context.Background(), plan, "wf-3", newRequest(), []string{"good", "bad"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected SUCCEEDED when one of two tools succeeds, got %s", state.Phase)
	}
	if len(state.Findings) != 1 {
		t.Fatalf("expected the surviving tool's finding, got %d", len(state.Findings))
	}
}

func TestParallelScanFailsIfAllToolsFailFatally(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(failingAdapter("bad1", &orcherrors.ParseError{Detail: "boom1"}))
	_ = reg.Register(failingAdapter("bad2", &orcherrors.ParseError{Detail: "boom2"}))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.EmergencyVuln([]string{"bad1", "bad2"}, nil)
	state, err := eng.Start(context.Background(), plan, "wf-4", newRequest(), []string{"bad1", "bad2"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseFailed {
		t.Fatalf("expected FAILED when every tool fails, got %s", state.Phase)
	}
}

func TestReleaseRegressionPausesForHumanReview(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("semgrep", mkFinding("f1", "a.py", severity.Critical)))
	store := newMemStore()
	sink := &recordingSink{}
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), sink, nil)

	plan := template.ReleaseRegression([]string{"semgrep"}, severity.High)
	state, err := eng.Start(context.Background(), plan, "wf-5", newRequest(), []string{"semgrep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhasePaused {
		t.Fatalf("expected PAUSED at human_review, got %s", state.Phase)
	}

	found := false
	for _, k := range sink.kinds() {
		if k == events.Paused {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a paused event")
	}
}

func TestResumeContinuesFromLatestCheckpointAfterPause(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("semgrep", mkFinding("f1", "a.py", severity.Critical)))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.ReleaseRegression([]string{"semgrep"}, severity.High)
	paused, err := eng.Start(context.Background(), plan, "wf-6", newRequest(), []string{"semgrep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if paused.Phase != workflow.PhasePaused {
		t.Fatalf("expected PAUSED, got %s", paused.Phase)
	}

	resumed, err := eng.Resume(context.Background(), plan, "wf-6", 0)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected SUCCEEDED after resume through finalize, got %s", resumed.Phase)
	}
	if resumed.Cursor != len(plan.Nodes) {
		t.Fatalf("expected cursor to reach plan end, got %d/%d", resumed.Cursor, len(plan.Nodes))
	}
}

// TestCancellationDuringParallelScanPropagatesToInFlightTasks exercises the
// "cancellation during parallel_scan" end-to-end scenario: canceling the
// context an in-flight tool task is running under surfaces as Canceled on
// that task, which the node folds into a CANCELED workflow.
func TestCancellationDuringParallelScanPropagatesToInFlightTasks(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := &fakeAdapter{toolID: "slow", category: capability.CategorySAST, block: block}
	reg := registry.New()
	_ = reg.Register(slow)
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.EmergencyVuln([]string{"slow"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan workflow.State, 1)
	go func() {
		s, _ := eng.Start(ctx, plan, "wf-7", newRequest(), []string{"slow"})
		done <- s
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case s := <-done:
		if s.Phase != workflow.PhaseCanceled {
			t.Fatalf("expected CANCELED after mid-scan cancellation, got %s", s.Phase)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not observe the cancellation")
	}
}

func TestRetryNodeRerunsPrecedingScanNode(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("semgrep", mkFinding("f1", "a.py", severity.Medium)))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := workflow.Plan{
		Name: "retry_flow",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeSingleScan, ToolIDs: []string{"semgrep"}},
			{Kind: workflow.NodeRetry},
			{Kind: workflow.NodeResultCollection},
			{Kind: workflow.NodeFinalize},
		},
	}
	state, err := eng.Start(context.Background(), plan, "wf-8", newRequest(), []string{"semgrep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (errors: %v)", state.Phase, state.Errors)
	}
	// single_scan then retry each contribute one copy of f1; result_collection
	// dedups by finding_id down to one.
	if len(state.Findings) != 1 {
		t.Fatalf("expected dedup down to 1 finding after retry re-run, got %d", len(state.Findings))
	}
}

func TestRetryNodeFailsWithoutAPrecedingScanNode(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := workflow.Plan{
		Name: "bad_retry",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeRetry},
			{Kind: workflow.NodeFinalize},
		},
	}
	state, err := eng.Start(context.Background(), plan, "wf-9", newRequest(), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseFailed {
		t.Fatalf("expected FAILED for a dangling retry node, got %s", state.Phase)
	}
}

func TestValidationTagsNonConformantFindingsWithoutRemovingThem(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(succeedingAdapter("semgrep",
		mkFinding("f1", "a.py", severity.Low),
		mkFinding("f2", "b.py", severity.Critical),
	))
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.DependencyUpdate("semgrep", severity.High)
	state, err := eng.Start(context.Background(), plan, "wf-10", newRequest(), []string{"semgrep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected SUCCEEDED (validation only tags), got %s", state.Phase)
	}
	if len(state.Findings) != 2 {
		t.Fatalf("expected both findings retained, got %d", len(state.Findings))
	}
	var lowTagged, criticalTagged bool
	for _, f := range state.Findings {
		if f.Severity.Level == severity.Low {
			lowTagged = f.HasTag("non_conformant")
		}
		if f.Severity.Level == severity.Critical {
			criticalTagged = f.HasTag("non_conformant")
		}
	}
	if !lowTagged {
		t.Fatal("expected the LOW finding to be tagged non_conformant")
	}
	if criticalTagged {
		t.Fatal("did not expect the CRITICAL finding to be tagged non_conformant")
	}
}

func TestUnregisteredToolFailsAtInitialize(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	plan := template.CodeCommit("missing-tool")
	state, err := eng.Start(context.Background(), plan, "wf-11", newRequest(), []string{"missing-tool"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseFailed {
		t.Fatalf("expected FAILED for an unregistered tool_id, got %s", state.Phase)
	}
	if len(state.Errors) == 0 {
		t.Fatal("expected an error recorded for the missing tool")
	}
}

func TestNoSilentPanicOnEmptyPlan(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	eng := workflow.NewEngine(store, reg, scheduler.New(scheduler.DefaultConfig(), nil), events.NopSink{}, nil)

	state, err := eng.Start(context.Background(), workflow.Plan{Name: "empty"}, "wf-12", newRequest(), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != workflow.PhaseSucceeded {
		t.Fatalf("expected an empty plan to succeed trivially, got %s", state.Phase)
	}
}
