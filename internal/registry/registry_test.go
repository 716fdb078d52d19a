package registry

import (
	"context"
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// testAdapter is a minimal adapter.Adapter used to exercise the registry
// without depending on any real tool integration.
type testAdapter struct {
	desc capability.Descriptor
}

func (a testAdapter) Describe() capability.Descriptor { return a.desc }
func (a testAdapter) Validate(scan.Request) error     { return nil }
func (a testAdapter) Execute(context.Context, scan.Request, adapter.ExecutionContext) (adapter.NativeOutput, error) {
	return adapter.NativeOutput{}, nil
}
func (a testAdapter) Parse(adapter.NativeOutput, scan.Request) ([]finding.Finding, error) {
	return nil, nil
}

func TestRegisterLookupList(t *testing.T) {
	r := New()
	d := capability.Descriptor{
		ToolID:             "semgrep",
		ToolName:           "Semgrep",
		Category:           capability.CategorySAST,
		SupportedLanguages: []string{"python"},
		CWECoverage:        []int{89},
		Execution:          capability.Execution{DefaultTimeoutSeconds: 120},
	}
	if err := r.Register(testAdapter{d}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, ok := r.Lookup("semgrep")
	if !ok {
		t.Fatal("expected lookup to find semgrep")
	}
	if got.Describe().ToolID != "semgrep" {
		t.Fatalf("unexpected descriptor: %+v", got.Describe())
	}

	list := r.List()
	if len(list) != 1 || list[0].ToolID != "semgrep" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestFilterByCategoryLanguageCWE(t *testing.T) {
	r := New()
	_ = r.Register(testAdapter{capability.Descriptor{
		ToolID: "semgrep", ToolName: "Semgrep", Category: capability.CategorySAST,
		SupportedLanguages: []string{"python"}, CWECoverage: []int{89},
		Execution: capability.Execution{DefaultTimeoutSeconds: 30},
	}})
	_ = r.Register(testAdapter{capability.Descriptor{
		ToolID: "trufflehog", ToolName: "Trufflehog", Category: capability.CategorySecrets,
		Execution: capability.Execution{DefaultTimeoutSeconds: 30},
	}})

	sast := r.Filter(Filter{Category: capability.CategorySAST})
	if len(sast) != 1 || sast[0].ToolID != "semgrep" {
		t.Fatalf("unexpected SAST filter result: %+v", sast)
	}

	byCWE := r.Filter(Filter{CWE: 89})
	if len(byCWE) != 1 || byCWE[0].ToolID != "semgrep" {
		t.Fatalf("unexpected CWE filter result: %+v", byCWE)
	}

	byLang := r.Filter(Filter{Language: "python"})
	if len(byLang) != 1 {
		t.Fatalf("unexpected language filter result: %+v", byLang)
	}
}

func TestDeregisterRefusesWhileInFlight(t *testing.T) {
	r := New()
	d := capability.Descriptor{
		ToolID: "semgrep", ToolName: "Semgrep", Category: capability.CategorySAST,
		Execution: capability.Execution{DefaultTimeoutSeconds: 30},
	}
	_ = r.Register(testAdapter{d})

	_, release, err := r.Acquire("semgrep")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := r.Deregister("semgrep"); err == nil {
		t.Fatal("expected deregister to fail while in flight")
	}
	release()
	if err := r.Deregister("semgrep"); err != nil {
		t.Fatalf("expected deregister to succeed after release: %v", err)
	}
}

func TestRegisterRejectsInvalidDescriptor(t *testing.T) {
	r := New()
	err := r.Register(testAdapter{capability.Descriptor{ToolID: ""}})
	if err == nil {
		t.Fatal("expected error registering descriptor with empty tool_id")
	}
}
