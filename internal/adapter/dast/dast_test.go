package dast

import (
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/scan"
)

func TestParseEmitsFindingsOnlyForTriggeredProbes(t *testing.T) {
	a := &Adapter{}
	payload := encodeOutcomes([]probeOutcome{
		{Probe: "missing-hsts", VulnName: "missing-strict-transport-security", CWE: 319, Triggered: true, Detail: "no HSTS header"},
		{Probe: "server-banner-disclosure", VulnName: "server-version-disclosure", CWE: 200, Triggered: false},
	})

	findings, err := a.Parse(adapter.NativeOutput{Payload: payload}, scan.Request{ScanID: "s1", Target: scan.Target{Path: "https://example.test"}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding for the triggered probe, got %d", len(findings))
	}
	if findings[0].VulnerabilityType.CWEID != 319 {
		t.Fatalf("expected CWE 319, got %d", findings[0].VulnerabilityType.CWEID)
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	a := &Adapter{}
	_, err := a.Parse(adapter.NativeOutput{Payload: []byte("not json")}, scan.Request{ScanID: "s1"})
	if err == nil {
		t.Fatal("expected parse error for malformed payload")
	}
}

func TestDescribeRequiresRunningApp(t *testing.T) {
	a := New(nil, config.DefaultHTTPConfig())
	d := a.Describe()
	if !d.InputRequirements.RequiresRunningApp {
		t.Fatal("expected dast probe to require a running application")
	}
	if !d.AcceptsTarget("HTTP_URL") {
		t.Fatal("expected dast probe to accept HTTP_URL targets")
	}
}
