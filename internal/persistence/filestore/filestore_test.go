package filestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanio-git/orchestrator/internal/persistence"
)

func TestPutGetCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	cp := persistence.Checkpoint{
		WorkflowID:   "wf-1",
		Seq:          3,
		CheckpointID: "ckpt-3",
		NodeKind:     "single_scan",
		CreatedAt:    time.Now().Truncate(time.Millisecond),
		StateJSON:    []byte(`{"cursor":1}`),
	}
	if err := s.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}

	got, err := s.GetCheckpoint(ctx, "wf-1", 3)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.CheckpointID != cp.CheckpointID || string(got.StateJSON) != string(cp.StateJSON) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestPutCheckpointIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()

	cp := persistence.Checkpoint{WorkflowID: "wf-1", Seq: 1, StateJSON: []byte("a")}
	if err := s.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("first put: %v", err)
	}
	cp.StateJSON = []byte("b")
	if err := s.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, err := s.GetCheckpoint(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.StateJSON) != "b" {
		t.Fatalf("expected overwrite to win, got %q", got.StateJSON)
	}
}

func TestListCheckpointsSortedBySeq(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()

	for _, seq := range []uint64{3, 1, 2} {
		_ = s.PutCheckpoint(ctx, persistence.Checkpoint{WorkflowID: "wf-1", Seq: seq})
	}
	list, err := s.ListCheckpoints(ctx, "wf-1")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(list))
	}
	for i, want := range []uint64{1, 2, 3} {
		if list[i].Seq != want {
			t.Fatalf("expected sorted order, got %+v", list)
		}
	}
}

func TestGetCheckpointNotFound(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	_, err := s.GetCheckpoint(context.Background(), "missing", 1)
	if err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
	if _, ok := err.(*persistence.ErrNotFound); !ok {
		t.Fatalf("expected *persistence.ErrNotFound, got %T", err)
	}
}

func TestWorkflowMetadataRoundTripAndList(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()

	md := persistence.WorkflowMetadata{
		WorkflowID: "wf-1",
		PlanName:   "code_commit",
		Phase:      "RUNNING",
		Progress:   0.5,
		CreatedAt:  time.Now().Truncate(time.Millisecond),
		UpdatedAt:  time.Now().Truncate(time.Millisecond),
		LatestSeq:  2,
	}
	if err := s.PutWorkflowMetadata(ctx, md); err != nil {
		t.Fatalf("PutWorkflowMetadata: %v", err)
	}
	got, err := s.GetWorkflowMetadata(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflowMetadata: %v", err)
	}
	if got.Phase != "RUNNING" || got.LatestSeq != 2 {
		t.Fatalf("unexpected metadata: %+v", got)
	}

	list, err := s.ListWorkflows(ctx)
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(list) != 1 || list[0].WorkflowID != "wf-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestDeleteWorkflowRemovesAllRecords(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()
	_ = s.PutCheckpoint(ctx, persistence.Checkpoint{WorkflowID: "wf-1", Seq: 1})
	_ = s.PutWorkflowMetadata(ctx, persistence.WorkflowMetadata{WorkflowID: "wf-1"})

	if err := s.DeleteWorkflow(ctx, "wf-1"); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	if _, err := s.GetWorkflowMetadata(ctx, "wf-1"); err == nil {
		t.Fatal("expected metadata to be gone after delete")
	}
}
