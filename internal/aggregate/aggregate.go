// Package aggregate implements the result_collection node's finding
// merge, correlation tagging, and deterministic sort (spec.md §4.6).
package aggregate

import (
	"sort"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// correlationKey groups findings that share location and vulnerability
// name but were assigned distinct finding_ids.
type correlationKey struct {
	filePath  string
	lineStart int
	vulnName  string
}

// Merge collapses findings sharing a finding_id into one (keeping the
// higher-confidence copy and accumulating source_tool entries), then
// tags findings that share (file_path, line_start, vulnerability_type)
// but differ in finding_id as "correlated", per spec.md §4.6.
func Merge(all []finding.Finding) []finding.Finding {
	byID := make(map[string]*finding.Finding, len(all))
	order := make([]string, 0, len(all))

	for _, f := range all {
		f := f.Clone()
		existing, ok := byID[f.FindingID]
		if !ok {
			byID[f.FindingID] = &f
			order = append(order, f.FindingID)
			continue
		}
		merged := mergeOne(*existing, f)
		byID[f.FindingID] = &merged
	}

	merged := make([]finding.Finding, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}

	correlated := groupByCorrelationKey(merged)
	for key, ids := range correlated {
		if len(ids) < 2 {
			continue
		}
		_ = key
		for _, id := range ids {
			f := byID[id]
			f.AddTag("correlated")
		}
	}

	out := make([]finding.Finding, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return Sort(out)
}

// mergeOne collapses two findings with the same finding_id, keeping
// the higher confidence.score and accumulating source_tool entries so
// every contributing tool's raw payload survives (spec.md §4.6).
func mergeOne(a, b finding.Finding) finding.Finding {
	kept := a
	if b.Confidence.Score > a.Confidence.Score {
		kept = b
	}
	sources := append([]finding.SourceTool(nil), a.SourceTool...)
	for _, st := range b.SourceTool {
		if !containsSourceTool(sources, st) {
			sources = append(sources, st)
		}
	}
	kept.SourceTool = sources
	return kept
}

func containsSourceTool(list []finding.SourceTool, st finding.SourceTool) bool {
	for _, existing := range list {
		if existing.ToolID == st.ToolID && existing.RuleID == st.RuleID {
			return true
		}
	}
	return false
}

func groupByCorrelationKey(findings []finding.Finding) map[correlationKey][]string {
	groups := make(map[correlationKey][]string)
	for _, f := range findings {
		key := correlationKey{
			filePath:  finding.CanonicalPath(f.Location.FilePath),
			lineStart: f.Location.LineStart,
			vulnName:  f.VulnerabilityType.Name,
		}
		groups[key] = append(groups[key], f.FindingID)
	}
	return groups
}

// Sort orders findings by severity descending, then CVSS descending
// (nulls last), then file_path ascending, then line_start ascending,
// per spec.md §4.6's stated sort key.
func Sort(findings []finding.Finding) []finding.Finding {
	out := append([]finding.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := severity.Rank(a.Severity.Level), severity.Rank(b.Severity.Level); ra != rb {
			return ra > rb
		}
		if cv := compareCVSS(a.Severity.CVSSScore, b.Severity.CVSSScore); cv != 0 {
			return cv > 0
		}
		if a.Location.FilePath != b.Location.FilePath {
			return a.Location.FilePath < b.Location.FilePath
		}
		return a.Location.LineStart < b.Location.LineStart
	})
	return out
}

// compareCVSS returns >0 if a > b, <0 if a < b, 0 if equal; nil sorts last.
func compareCVSS(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}
