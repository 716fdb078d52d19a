package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/persistence"
	"github.com/scanio-git/orchestrator/internal/persistence/filestore"
	"github.com/scanio-git/orchestrator/internal/severity"
	"github.com/scanio-git/orchestrator/internal/workflow"
)

func seedWorkflow(t *testing.T, store *filestore.Store, workflowID string) {
	t.Helper()
	state := workflow.State{
		WorkflowID: workflowID,
		PlanName:   "code_commit",
		Phase:      workflow.PhaseSucceeded,
		Findings: []finding.Finding{
			{FindingID: "f1", Severity: finding.Severity{Level: severity.High}},
		},
	}
	body, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	ctx := context.Background()
	if err := store.PutCheckpoint(ctx, persistence.Checkpoint{WorkflowID: workflowID, Seq: 1, CreatedAt: time.Now(), StateJSON: body}); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}
	if err := store.PutWorkflowMetadata(ctx, persistence.WorkflowMetadata{WorkflowID: workflowID, PlanName: "code_commit", Phase: string(workflow.PhaseSucceeded), LatestSeq: 1, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("PutWorkflowMetadata: %v", err)
	}
}

func TestListResourcesIncludesHistoryAndEveryWorkflow(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	seedWorkflow(t, store, "wf-1")
	seedWorkflow(t, store, "wf-2")

	r := New(store)
	descs := r.ListResources()
	if len(descs) != 3 {
		t.Fatalf("expected history + 2 workflows, got %d", len(descs))
	}
	if descs[0].URI != historyURI {
		t.Fatalf("expected the first entry to be history, got %q", descs[0].URI)
	}
}

func TestReadResourceReturnsLatestFindings(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	seedWorkflow(t, store, "wf-1")

	r := New(store)
	content, err := r.ReadResource("scan://results/wf-1")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if !strings.Contains(content.Text, "f1") {
		t.Fatalf("expected the checkpointed finding to appear in the resource body, got %s", content.Text)
	}
}

func TestReadResourceRejectsUnknownURI(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	r := New(store)
	if _, err := r.ReadResource("scan://bogus"); err == nil {
		t.Fatal("expected an error for an unrecognized resource uri")
	}
}
