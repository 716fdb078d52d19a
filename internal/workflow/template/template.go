// Package template holds the four named scenario plans of spec.md §4.5
// ("Scenario templates"), each a flattened, ordered node sequence — fan-out
// lives only inside a single parallel_scan node, per spec.md §9's "plans
// are flattened ordered sequences" design note.
package template

import (
	"github.com/scanio-git/orchestrator/internal/severity"
	"github.com/scanio-git/orchestrator/internal/workflow"
)

// CodeCommit is the lightest scenario: one tool against a single commit,
// collect, finalize. No validation gate, no human review.
func CodeCommit(toolID string) workflow.Plan {
	return workflow.Plan{
		Name: "code_commit",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeSingleScan, ToolIDs: []string{toolID}},
			{Kind: workflow.NodeResultCollection},
			{Kind: workflow.NodeFinalize},
		},
	}
}

// DependencyUpdate runs a single SCA-style tool and gates the result
// against a severity floor before finalizing, without a collection step
// since there is exactly one source of findings.
func DependencyUpdate(toolID string, floor severity.Level) workflow.Plan {
	return workflow.Plan{
		Name: "dependency_update",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeSingleScan, ToolIDs: []string{toolID}},
			{Kind: workflow.NodeValidation, Policy: &workflow.ValidationPolicy{SeverityFloor: floor}},
			{Kind: workflow.NodeFinalize},
		},
	}
}

// EmergencyVuln fans multiple tools out in parallel, merges and dedups
// their findings, and gates on a CWE include-list — the shape used when
// responding to a specific disclosed vulnerability class.
func EmergencyVuln(toolIDs []string, includeCWEs []int) workflow.Plan {
	return workflow.Plan{
		Name: "emergency_vuln",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeParallelScan, ToolIDs: toolIDs},
			{Kind: workflow.NodeResultCollection},
			{Kind: workflow.NodeValidation, Policy: &workflow.ValidationPolicy{IncludeCWEs: includeCWEs}},
			{Kind: workflow.NodeFinalize},
		},
	}
}

// ReleaseRegression is the heaviest scenario: full parallel tool fan-out,
// collection, a severity-floor gate, and a mandatory human review pause
// before the release can finalize.
func ReleaseRegression(toolIDs []string, floor severity.Level) workflow.Plan {
	return workflow.Plan{
		Name: "release_regression",
		Nodes: []workflow.NodeSpec{
			{Kind: workflow.NodeInitialize},
			{Kind: workflow.NodeParallelScan, ToolIDs: toolIDs},
			{Kind: workflow.NodeResultCollection},
			{Kind: workflow.NodeValidation, Policy: &workflow.ValidationPolicy{SeverityFloor: floor}},
			{Kind: workflow.NodeHumanReview},
			{Kind: workflow.NodeFinalize},
		},
	}
}
