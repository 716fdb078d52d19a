// Package finding defines the Unified Finding (spec.md §3.3): the single
// vulnerability schema every tool adapter normalizes its native output
// into.
package finding

import (
	"time"

	"github.com/scanio-git/orchestrator/internal/severity"
)

// VerificationStatus tracks a finding's disposition after human or
// automated review.
type VerificationStatus string

const (
	VerificationPending      VerificationStatus = "PENDING"
	VerificationVerified     VerificationStatus = "VERIFIED"
	VerificationFalsePositive VerificationStatus = "FALSE_POSITIVE"
	VerificationWontFix      VerificationStatus = "WONT_FIX"
)

// VulnerabilityType names what kind of issue was found.
type VulnerabilityType struct {
	Name          string
	CWEID         int // 0 means unset
	OWASPCategory string
}

// Location pinpoints where a finding was observed.
type Location struct {
	FilePath      string
	FunctionName  string
	ClassName     string
	LineStart     int
	LineEnd       int
	ColumnStart   int
	ColumnEnd     int
	CodeSnippet   string
}

// Severity carries the normalized level plus optional CVSS/exploitability
// detail.
type Severity struct {
	Level          severity.Level
	CVSSScore      *float64
	Exploitability severity.Exploitability
}

// Confidence carries the normalizer's certainty about a finding.
type Confidence struct {
	Score  int // 0..100
	Reason string
}

// SourceTool records provenance, including every contributing tool once
// dedup has merged duplicates (spec.md §4.6).
type SourceTool struct {
	ToolID         string
	RuleID         string
	NativeSeverity string
	RawOutput      string // verbatim payload passed to parse, for audit
}

// Description carries the human-facing narrative of a finding.
type Description struct {
	Summary     string
	Detail      string
	Impact      string
	Remediation string
}

// Metadata carries auxiliary, mutable-by-aggregation data.
type Metadata struct {
	DetectedAt time.Time
	Language   string
	Tags       []string
	References []string
}

// Finding is the Unified Finding of spec.md §3.3.
type Finding struct {
	FindingID       string
	ScanSessionID   string
	VulnerabilityType VulnerabilityType
	Location        Location
	Severity        Severity
	Confidence      Confidence
	SourceTool      []SourceTool // one entry normally; >1 after dedup merge
	Description     Description
	Metadata        Metadata
	VerificationStatus VerificationStatus
}

// AddTag appends a metadata tag if not already present.
func (f *Finding) AddTag(tag string) {
	for _, t := range f.Metadata.Tags {
		if t == tag {
			return
		}
	}
	f.Metadata.Tags = append(f.Metadata.Tags, tag)
}

// HasTag reports whether a metadata tag is present.
func (f Finding) HasTag(tag string) bool {
	for _, t := range f.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy for the "findings are cloned when
// exported" lifecycle rule of spec.md §3.5.
func (f Finding) Clone() Finding {
	clone := f
	clone.SourceTool = append([]SourceTool(nil), f.SourceTool...)
	clone.Metadata.Tags = append([]string(nil), f.Metadata.Tags...)
	clone.Metadata.References = append([]string(nil), f.Metadata.References...)
	if f.Severity.CVSSScore != nil {
		v := *f.Severity.CVSSScore
		clone.Severity.CVSSScore = &v
	}
	return clone
}
