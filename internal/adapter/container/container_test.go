package container

import (
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/scan"
)

const fixtureTrivyJSON = `[
  {"VulnerabilityID": "CVE-2022-1234", "PkgName": "openssl", "InstalledVersion": "1.1.1k", "Severity": "CRITICAL", "Title": "buffer overflow", "Description": "heap overflow (CWE-120)"}
]`

func TestParseExtractsFindingsFromTrivyJSON(t *testing.T) {
	a := New("aquasec/trivy:latest", "scanning")
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(fixtureTrivyJSON)}, scan.Request{ScanID: "s1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.VulnerabilityType.Name != "CVE-2022-1234" {
		t.Fatalf("unexpected vulnerability name: %s", f.VulnerabilityType.Name)
	}
	if f.Location.FilePath != "openssl@1.1.1k" {
		t.Fatalf("unexpected location: %s", f.Location.FilePath)
	}
	if f.VulnerabilityType.CWEID != 120 {
		t.Fatalf("expected CWE 120, got %d", f.VulnerabilityType.CWEID)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	a := New("aquasec/trivy:latest", "scanning")
	_, err := a.Parse(adapter.NativeOutput{Payload: []byte("not json")}, scan.Request{ScanID: "s1"})
	if err == nil {
		t.Fatal("expected parse error for malformed JSON")
	}
}

func TestDescribeRequiresNetworkAndContainerImageTarget(t *testing.T) {
	a := New("aquasec/trivy:latest", "scanning")
	d := a.Describe()
	if !d.Execution.RequiresNetwork {
		t.Fatal("expected container scan to require network access")
	}
	if !d.AcceptsTarget("CONTAINER_IMAGE") {
		t.Fatal("expected container scan to accept CONTAINER_IMAGE targets")
	}
}
