package sarif

import (
	"bytes"
	"testing"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/severity"
)

func mkFinding(id, toolID, ruleID string, level severity.Level, cwe int) finding.Finding {
	return finding.Finding{
		FindingID:       id,
		VulnerabilityType: finding.VulnerabilityType{Name: "sql-injection", CWEID: cwe},
		Location:        finding.Location{FilePath: "app/db.py", LineStart: 42},
		Severity:        finding.Severity{Level: level},
		SourceTool:      []finding.SourceTool{{ToolID: toolID, RuleID: ruleID}},
		Description:     finding.Description{Summary: "possible SQL injection"},
	}
}

func TestExportGroupsResultsByContributingTool(t *testing.T) {
	findings := []finding.Finding{
		mkFinding("f1", "semgrep", "python.sql-injection", severity.High, 89),
		mkFinding("f2", "codeql", "py/sql-injection", severity.Critical, 89),
	}
	report, err := Export(findings)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(report.Runs) != 2 {
		t.Fatalf("expected one run per contributing tool, got %d", len(report.Runs))
	}
}

func TestExportDeduplicatesRulesWithinARun(t *testing.T) {
	findings := []finding.Finding{
		mkFinding("f1", "semgrep", "python.sql-injection", severity.High, 89),
		mkFinding("f2", "semgrep", "python.sql-injection", severity.High, 89),
	}
	report, err := Export(findings)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("expected a single run, got %d", len(report.Runs))
	}
	run := report.Runs[0]
	if len(run.Tool.Driver.Rules) != 1 {
		t.Fatalf("expected the repeated rule id to collapse to one entry, got %d", len(run.Tool.Driver.Rules))
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected both findings to still produce a result, got %d", len(run.Results))
	}
}

func TestExportFallsBackToCWEWhenSourceToolIsMissing(t *testing.T) {
	f := finding.Finding{
		FindingID:       "f1",
		VulnerabilityType: finding.VulnerabilityType{CWEID: 79},
		Severity:        finding.Severity{Level: severity.Medium},
	}
	report, err := Export([]finding.Finding{f})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if report.Runs[0].Tool.Driver.Name != ToolName {
		t.Fatalf("expected fallback driver name %q, got %q", ToolName, report.Runs[0].Tool.Driver.Name)
	}
	if got := *report.Runs[0].Results[0].RuleID; got != "CWE-79" {
		t.Fatalf("expected fallback rule id CWE-79, got %q", got)
	}
}

func TestSarifLevelMapsEverySeverity(t *testing.T) {
	cases := map[severity.Level]string{
		severity.Critical: "error",
		severity.High:     "error",
		severity.Medium:   "warning",
		severity.Low:      "note",
		severity.Info:     "none",
	}
	for level, want := range cases {
		if got := sarifLevel(level); got != want {
			t.Errorf("sarifLevel(%s) = %q, want %q", level, got, want)
		}
	}
}

func TestWriteProducesValidJSON(t *testing.T) {
	report, err := Export([]finding.Finding{mkFinding("f1", "semgrep", "python.sql-injection", severity.High, 89)})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, report); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty SARIF output")
	}
}
