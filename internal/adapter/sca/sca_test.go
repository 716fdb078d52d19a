package sca

import (
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/scan"
)

const fixtureCycloneDX = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "components": [
    {"bom-ref": "pkg:pypi/requests@2.25.0", "type": "library", "name": "requests", "version": "2.25.0", "purl": "pkg:pypi/requests@2.25.0"}
  ],
  "vulnerabilities": [
    {
      "id": "CVE-2023-32681",
      "description": "Requests leaks Proxy-Authorization header (CWE-200)",
      "ratings": [{"severity": "high", "score": 8.1}],
      "affects": [{"ref": "pkg:pypi/requests@2.25.0"}]
    }
  ]
}`

func TestParseExtractsVulnerabilityFindings(t *testing.T) {
	a := New()
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(fixtureCycloneDX)}, scan.Request{ScanID: "s1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.VulnerabilityType.Name != "CVE-2023-32681" {
		t.Fatalf("unexpected vulnerability name: %s", f.VulnerabilityType.Name)
	}
	if f.Severity.CVSSScore == nil || *f.Severity.CVSSScore != 8.1 {
		t.Fatalf("expected cvss score 8.1, got %+v", f.Severity.CVSSScore)
	}
	if f.VulnerabilityType.CWEID != 200 {
		t.Fatalf("expected CWE 200 extracted from description, got %d", f.VulnerabilityType.CWEID)
	}
}

func TestParseHandlesNoVulnerabilities(t *testing.T) {
	a := New()
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(`{"bomFormat":"CycloneDX","specVersion":"1.4","version":1}`)}, scan.Request{ScanID: "s1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected 0 findings, got %d", len(findings))
	}
}

func TestParseRejectsMalformedBOM(t *testing.T) {
	a := New()
	_, err := a.Parse(adapter.NativeOutput{Payload: []byte("not json")}, scan.Request{ScanID: "s1"})
	if err == nil {
		t.Fatal("expected parse error for malformed BOM")
	}
}
