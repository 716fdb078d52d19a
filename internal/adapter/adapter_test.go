package adapter

import (
	"context"
	"testing"

	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
)

type fakeAdapter struct {
	desc        capability.Descriptor
	validateErr error
	execOut     NativeOutput
	execErr     error
	parseOut    []finding.Finding
	parseErr    error
}

func (f *fakeAdapter) Describe() capability.Descriptor { return f.desc }
func (f *fakeAdapter) Validate(scan.Request) error     { return f.validateErr }
func (f *fakeAdapter) Execute(context.Context, scan.Request, ExecutionContext) (NativeOutput, error) {
	return f.execOut, f.execErr
}
func (f *fakeAdapter) Parse(NativeOutput, scan.Request) ([]finding.Finding, error) {
	return f.parseOut, f.parseErr
}

func baseDescriptor() capability.Descriptor {
	return capability.Descriptor{
		ToolID:   "fake-tool",
		ToolName: "Fake Tool",
		Category: capability.CategorySAST,
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 60,
		},
	}
}

func TestRunHappyPathEmitsFindingsAndStageEvents(t *testing.T) {
	a := &fakeAdapter{
		desc: baseDescriptor(),
		parseOut: []finding.Finding{
			{FindingID: "abc"},
		},
	}
	ring := events.NewRing(16)
	findings, _, err := Run(context.Background(), a, scan.Request{ScanID: "s1"}, ExecutionContext{}, ring)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	kinds := map[events.Kind]int{}
	for _, e := range ring.Since(0) {
		kinds[e.Kind]++
	}
	for _, want := range []events.Kind{events.AdapterValidated, events.AdapterExecuted, events.AdapterParsed, events.FindingEmitted} {
		if kinds[want] == 0 {
			t.Errorf("expected at least one %s event", want)
		}
	}
}

func TestRunStopsAtInvalidInput(t *testing.T) {
	a := &fakeAdapter{
		desc:        baseDescriptor(),
		validateErr: &orcherrors.InvalidInput{Reason: "missing target"},
	}
	_, _, err := Run(context.Background(), a, scan.Request{}, ExecutionContext{}, events.NopSink{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(*orcherrors.InvalidInput); !ok {
		t.Fatalf("expected *orcherrors.InvalidInput, got %T", err)
	}
}

func TestRunTagsFindingsPartialOnPartialOutput(t *testing.T) {
	a := &fakeAdapter{
		desc:     baseDescriptor(),
		execOut:  NativeOutput{Partial: true},
		parseOut: []finding.Finding{{FindingID: "abc"}},
	}
	findings, _, err := Run(context.Background(), a, scan.Request{}, ExecutionContext{}, events.NopSink{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !findings[0].HasTag("partial") {
		t.Fatalf("expected partial tag on finding from partial output")
	}
}

func TestRunPropagatesExecuteError(t *testing.T) {
	a := &fakeAdapter{
		desc:    baseDescriptor(),
		execErr: &orcherrors.Timeout{AfterSeconds: 30},
	}
	_, _, err := Run(context.Background(), a, scan.Request{}, ExecutionContext{}, events.NopSink{})
	if _, ok := err.(*orcherrors.Timeout); !ok {
		t.Fatalf("expected *orcherrors.Timeout, got %T (%v)", err, err)
	}
}
