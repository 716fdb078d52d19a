package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/severity"
)

type fakeTriager struct {
	suggestion string
	err        error
	calls      []string
}

func (f *fakeTriager) Suggest(ctx context.Context, fnd finding.Finding) (string, error) {
	f.calls = append(f.calls, fnd.FindingID)
	return f.suggestion, f.err
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	tr, err := New(config.Triage{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr != nil {
		t.Fatal("expected a nil triager when triage is disabled")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.Triage{Enabled: true, Backend: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected an error for an unsupported backend")
	}
}

func TestAnnotateOnlyTouchesHighAndCriticalFindings(t *testing.T) {
	findings := []finding.Finding{
		{FindingID: "low", Severity: finding.Severity{Level: severity.Low}},
		{FindingID: "high", Severity: finding.Severity{Level: severity.High}},
		{FindingID: "critical", Severity: finding.Severity{Level: severity.Critical}},
	}
	f := &fakeTriager{suggestion: "patch it"}
	Annotate(context.Background(), f, findings, nil)

	if len(f.calls) != 2 {
		t.Fatalf("expected triage to run for 2 findings, ran for %d (%v)", len(f.calls), f.calls)
	}
	if findings[0].Description.Remediation != "" {
		t.Fatal("expected the LOW finding to be untouched")
	}
	if findings[1].Description.Remediation != "patch it" || !findings[1].HasTag("triaged") {
		t.Fatal("expected the HIGH finding to be annotated and tagged")
	}
	if findings[2].Description.Remediation != "patch it" {
		t.Fatal("expected the CRITICAL finding to be annotated")
	}
}

func TestAnnotateSwallowsTriagerErrors(t *testing.T) {
	findings := []finding.Finding{
		{FindingID: "f1", Severity: finding.Severity{Level: severity.Critical}},
	}
	f := &fakeTriager{err: errors.New("backend unavailable")}
	Annotate(context.Background(), f, findings, nil)

	if findings[0].Description.Remediation != "" {
		t.Fatal("expected no remediation text when the backend fails")
	}
	if findings[0].HasTag("triaged") {
		t.Fatal("expected no triaged tag when the backend fails")
	}
}

func TestAnnotateIsANoOpWithoutATriager(t *testing.T) {
	findings := []finding.Finding{
		{FindingID: "f1", Severity: finding.Severity{Level: severity.Critical}},
	}
	Annotate(context.Background(), nil, findings, nil)
	if findings[0].Description.Remediation != "" {
		t.Fatal("expected findings untouched when no triager is configured")
	}
}
