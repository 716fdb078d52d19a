// Package resources answers the broker's resources/list and
// resources/read methods (spec.md §6, "scan://results/{scan_id} and
// scan://history URIs") off a persistence.Store, following the same
// aggregate-then-marshal shape the teacher's cmd/list.go/cmd/list-issues
// use to turn stored records into a CLI-facing listing, here reused as an
// in-process broker.ResourceReader instead of stdout output.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/scanio-git/orchestrator/internal/broker"
	"github.com/scanio-git/orchestrator/internal/persistence"
	"github.com/scanio-git/orchestrator/internal/workflow"
)

const historyURI = "scan://history"

// Reader implements broker.ResourceReader against a persistence.Store.
type Reader struct {
	store persistence.Store
}

// New builds a Reader over store.
func New(store persistence.Store) *Reader {
	return &Reader{store: store}
}

// ListResources enumerates scan://history plus one scan://results/{id}
// entry per workflow the store currently knows about.
func (r *Reader) ListResources() []broker.ResourceDescription {
	ctx := context.Background()
	descs := []broker.ResourceDescription{
		{URI: historyURI, Name: "workflow history", Description: "summary of every known workflow"},
	}
	metas, err := r.store.ListWorkflows(ctx)
	if err != nil {
		return descs
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].WorkflowID < metas[j].WorkflowID })
	for _, md := range metas {
		descs = append(descs, broker.ResourceDescription{
			URI:         resultURI(md.WorkflowID),
			Name:        fmt.Sprintf("results for %s", md.WorkflowID),
			Description: fmt.Sprintf("plan %s, phase %s", md.PlanName, md.Phase),
		})
	}
	return descs
}

// ReadResource resolves historyURI to the full workflow metadata listing
// and scan://results/{scan_id} to that workflow's latest checkpointed
// findings.
func (r *Reader) ReadResource(uri string) (broker.ResourceContent, error) {
	ctx := context.Background()
	if uri == historyURI {
		return r.readHistory(ctx)
	}
	workflowID, ok := parseResultURI(uri)
	if !ok {
		return broker.ResourceContent{}, fmt.Errorf("resources: unrecognized uri %q", uri)
	}
	return r.readResults(ctx, workflowID)
}

func (r *Reader) readHistory(ctx context.Context) (broker.ResourceContent, error) {
	metas, err := r.store.ListWorkflows(ctx)
	if err != nil {
		return broker.ResourceContent{}, fmt.Errorf("resources: list workflows: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt.After(metas[j].UpdatedAt) })
	body, err := json.Marshal(metas)
	if err != nil {
		return broker.ResourceContent{}, fmt.Errorf("resources: marshal history: %w", err)
	}
	return broker.ResourceContent{URI: historyURI, MimeType: "application/json", Text: string(body)}, nil
}

func (r *Reader) readResults(ctx context.Context, workflowID string) (broker.ResourceContent, error) {
	cp, err := r.store.LatestCheckpoint(ctx, workflowID)
	if err != nil {
		return broker.ResourceContent{}, fmt.Errorf("resources: latest checkpoint for %s: %w", workflowID, err)
	}
	state, err := workflow.DecodeState(cp.StateJSON)
	if err != nil {
		return broker.ResourceContent{}, fmt.Errorf("resources: decode state for %s: %w", workflowID, err)
	}
	body, err := json.Marshal(struct {
		WorkflowID string           `json:"workflow_id"`
		Phase      string           `json:"phase"`
		Findings   json.RawMessage  `json:"findings"`
	}{WorkflowID: workflowID, Phase: string(state.Phase), Findings: mustMarshal(state.Findings)})
	if err != nil {
		return broker.ResourceContent{}, fmt.Errorf("resources: marshal results for %s: %w", workflowID, err)
	}
	return broker.ResourceContent{URI: resultURI(workflowID), MimeType: "application/json", Text: string(body)}, nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func resultURI(workflowID string) string {
	return "scan://results/" + workflowID
}

func parseResultURI(uri string) (string, bool) {
	const prefix = "scan://results/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", false
	}
	return uri[len(prefix):], true
}
