package semgrep

import (
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/severity"
)

const fixtureSARIF = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "semgrep", "rules": []}},
      "results": [
        {
          "ruleId": "python.sql-injection.cwe-89",
          "level": "error",
          "message": {"text": "Possible SQL injection"},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "app/db.py"},
                "region": {"startLine": 42, "endLine": 42, "startColumn": 1, "endColumn": 20}
              }
            }
          ]
        }
      ]
    }
  ]
}`

func TestParseExtractsFindingsFromSARIF(t *testing.T) {
	a := New()
	req := scan.Request{ScanID: "s1"}
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(fixtureSARIF)}, req)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Location.FilePath != "app/db.py" || f.Location.LineStart != 42 {
		t.Fatalf("unexpected location: %+v", f.Location)
	}
	if f.VulnerabilityType.CWEID != 89 {
		t.Fatalf("expected CWE 89 extracted from rule id, got %d", f.VulnerabilityType.CWEID)
	}
	if f.FindingID == "" {
		t.Fatal("expected finding_id to be assigned")
	}
}

func TestParseRejectsMalformedSARIF(t *testing.T) {
	a := New()
	_, err := a.Parse(adapter.NativeOutput{Payload: []byte("not json")}, scan.Request{ScanID: "s1"})
	if err == nil {
		t.Fatal("expected parse error for malformed SARIF")
	}
}

func TestParseFallsBackToMediumForUnrecognizedLevel(t *testing.T) {
	a := New()
	sarifDoc := `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"semgrep"}},"results":[
		{"ruleId":"r1","level":"weird","message":{"text":"x"},"locations":[{"physicalLocation":{"artifactLocation":{"uri":"a.py"},"region":{"startLine":1}}}]}
	]}]}`
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(sarifDoc)}, scan.Request{ScanID: "s1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if findings[0].Severity.Level != severity.Medium {
		t.Fatalf("expected MEDIUM fallback, got %s", findings[0].Severity.Level)
	}
}
