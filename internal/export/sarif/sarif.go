// Package sarif exports Unified Findings (spec.md §3.3) as a SARIF 2.1.0
// log, the read/write counterpart to the teacher's internal/sarif, which
// only ever reads a tool's native SARIF output on the way in. Rule and
// result construction here follow the same github.com/owenrumney/go-sarif/v2
// object shapes internal/sarif's own tests build by hand
// (gosarif.Report{Version, Runs}, Run{Tool, Results}, ReportingDescriptor,
// Result{RuleID, Level, Properties}), just assembled from a Finding instead
// of parsed off disk.
package sarif

import (
	"encoding/json"
	"fmt"
	"io"

	gosarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// ToolName is the driver name stamped onto every run this package emits.
const ToolName = "orchestrator"

// Export builds a SARIF 2.1.0 report from a set of findings, grouping
// results by the SourceTool that first reported each one. Findings with no
// SourceTool entries are attributed to ToolName so the report never carries
// a driverless run.
func Export(findings []finding.Finding) (*gosarif.Report, error) {
	report, err := gosarif.New(gosarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("new sarif report: %w", err)
	}

	runs := map[string]*gosarif.Run{}
	rulesSeen := map[string]map[string]bool{}
	order := []string{}

	for _, f := range findings {
		toolID, ruleID := attribution(f)
		run, ok := runs[toolID]
		if !ok {
			run = gosarif.NewRunWithInformationURI(toolID, "")
			runs[toolID] = run
			rulesSeen[toolID] = map[string]bool{}
			order = append(order, toolID)
		}
		if !rulesSeen[toolID][ruleID] {
			run.AddRule(ruleID).
				WithName(f.VulnerabilityType.Name).
				WithShortDescription(gosarif.NewMultiformatMessageString(shortDescription(f))).
				WithDefaultConfiguration(gosarif.NewReportingConfiguration().WithLevel(sarifLevel(f.Severity.Level)))
			rulesSeen[toolID][ruleID] = true
		}
		if err := addResult(run, f, ruleID); err != nil {
			return nil, err
		}
	}

	for _, toolID := range order {
		report.AddRun(runs[toolID])
	}
	return report, nil
}

// Write marshals a SARIF report as indented JSON, matching the layout a
// scanner's own SARIF file would carry so downstream tooling built against
// native tool output reads either interchangeably.
func Write(w io.Writer, report *gosarif.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode sarif report: %w", err)
	}
	return nil
}

func attribution(f finding.Finding) (toolID, ruleID string) {
	if len(f.SourceTool) == 0 {
		return ToolName, fallbackRuleID(f)
	}
	src := f.SourceTool[0]
	toolID = src.ToolID
	if toolID == "" {
		toolID = ToolName
	}
	ruleID = src.RuleID
	if ruleID == "" {
		ruleID = fallbackRuleID(f)
	}
	return toolID, ruleID
}

func fallbackRuleID(f finding.Finding) string {
	if f.VulnerabilityType.CWEID != 0 {
		return fmt.Sprintf("CWE-%d", f.VulnerabilityType.CWEID)
	}
	if f.VulnerabilityType.Name != "" {
		return f.VulnerabilityType.Name
	}
	return "unclassified"
}

func shortDescription(f finding.Finding) string {
	if f.Description.Summary != "" {
		return f.Description.Summary
	}
	return f.VulnerabilityType.Name
}

func addResult(run *gosarif.Run, f finding.Finding, ruleID string) error {
	result := run.CreateResultForRule(ruleID).
		WithLevel(sarifLevel(f.Severity.Level)).
		WithMessage(gosarif.NewTextMessage(message(f)))

	if f.FindingID != "" {
		result.WithGuid(f.FindingID)
	}
	if len(f.Metadata.Tags) > 0 {
		result.Properties = gosarif.Properties{"tags": f.Metadata.Tags}
	}

	region := gosarif.NewRegion()
	if f.Location.LineStart > 0 {
		region.WithStartLine(f.Location.LineStart)
	}
	if f.Location.LineEnd > 0 {
		region.WithEndLine(f.Location.LineEnd)
	}
	if f.Location.ColumnStart > 0 {
		region.WithStartColumn(f.Location.ColumnStart)
	}
	if f.Location.ColumnEnd > 0 {
		region.WithEndColumn(f.Location.ColumnEnd)
	}

	path := finding.CanonicalPath(f.Location.FilePath)
	if path == "" {
		path = "unknown"
	}
	location := gosarif.NewPhysicalLocation().
		WithArtifactLocation(gosarif.NewSimpleArtifactLocation(path)).
		WithRegion(region)
	result.AddLocation(gosarif.NewLocationWithPhysicalLocation(location))

	return nil
}

func message(f finding.Finding) string {
	if f.Description.Detail != "" {
		return f.Description.Detail
	}
	if f.Description.Summary != "" {
		return f.Description.Summary
	}
	return f.VulnerabilityType.Name
}

// sarifLevel maps a unified severity to the SARIF result.level vocabulary
// (spec.md §4.3's inverse: unified levels going back out to a native-shaped
// token, here SARIF's own "error"/"warning"/"note"/"none").
func sarifLevel(l severity.Level) string {
	switch l {
	case severity.Critical, severity.High:
		return "error"
	case severity.Medium:
		return "warning"
	case severity.Low:
		return "note"
	default:
		return "none"
	}
}
