package codeql

import (
	"testing"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/scan"
)

const fixtureSARIF = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "codeql", "rules": []}},
      "results": [
        {
          "ruleId": "js/sql-injection",
          "level": "error",
          "message": {"text": "This query depends on a user-provided value (CWE-89)."},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "src/handlers.js"},
                "region": {"startLine": 17, "endLine": 17}
              }
            }
          ]
        }
      ]
    }
  ]
}`

func TestParseExtractsFindingsFromSARIF(t *testing.T) {
	a := New("javascript")
	findings, err := a.Parse(adapter.NativeOutput{Payload: []byte(fixtureSARIF)}, scan.Request{ScanID: "s1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Location.FilePath != "src/handlers.js" || f.Location.LineStart != 17 {
		t.Fatalf("unexpected location: %+v", f.Location)
	}
	if f.VulnerabilityType.CWEID != 89 {
		t.Fatalf("expected CWE 89 extracted from message, got %d", f.VulnerabilityType.CWEID)
	}
}

func TestParseRejectsMalformedSARIF(t *testing.T) {
	a := New("go")
	_, err := a.Parse(adapter.NativeOutput{Payload: []byte("{not valid")}, scan.Request{ScanID: "s1"})
	if err == nil {
		t.Fatal("expected parse error for malformed SARIF")
	}
}

func TestDescribeReportsCategorySAST(t *testing.T) {
	a := New("python")
	d := a.Describe()
	if d.ToolID != "codeql" {
		t.Fatalf("unexpected tool id: %s", d.ToolID)
	}
	if d.Execution.DefaultTimeoutSeconds <= 0 {
		t.Fatal("expected a positive default timeout")
	}
}
