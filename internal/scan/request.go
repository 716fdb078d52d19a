// Package scan defines the Scan Request (spec.md §3.2), the short-lived
// value the engine constructs and hands to an adapter.
package scan

import (
	"fmt"

	"github.com/scanio-git/orchestrator/internal/capability"
)

// ScanType distinguishes a full scan from an incremental one.
type ScanType string

const (
	ScanFull        ScanType = "FULL"
	ScanIncremental ScanType = "INCREMENTAL"
)

// Target identifies what is being scanned.
type Target struct {
	Kind   capability.TargetKind
	Path   string // local path, repo URL, image ref, or HTTP URL
	Branch string
	Commit string
	Digest string
}

// Options carries scan-shaping knobs that do not change what is being
// scanned, only how thoroughly.
type Options struct {
	LanguageHint string
	CustomRules  []string
	ExcludePaths []string
	SeverityFloor string // one of the severity.Level string values, or ""
}

// Context carries provenance the engine attaches to every request it
// constructs for a workflow node.
type Context struct {
	WorkflowID  string
	ProjectName string
	ScanType    ScanType
	TriggeredBy string
}

// Limits bounds what an adapter run is allowed to do.
type Limits struct {
	TimeoutSeconds int
	MaxFindings    int
}

// Request is the Scan Request of spec.md §3.2.
type Request struct {
	ScanID         string
	Target         Target
	Options        Options
	Context        Context
	Limits         Limits
	NetworkAllowed bool
}

// Validate performs the structural checks every adapter's own Validate
// method builds on: a well-formed request shape, independent of any
// specific tool's capability descriptor.
func (r Request) Validate() error {
	if r.ScanID == "" {
		return fmt.Errorf("scan request: scan_id must not be empty")
	}
	if r.Target.Path == "" {
		return fmt.Errorf("scan request %s: target.path must not be empty", r.ScanID)
	}
	switch r.Target.Kind {
	case capability.TargetLocalPath, capability.TargetGitRepo, capability.TargetContainerImage, capability.TargetHTTPURL:
	default:
		return fmt.Errorf("scan request %s: unknown target kind %q", r.ScanID, r.Target.Kind)
	}
	if r.Limits.TimeoutSeconds < 0 {
		return fmt.Errorf("scan request %s: limits.timeout must be >= 0", r.ScanID)
	}
	return nil
}

// ValidateAgainst checks the request against a specific adapter's
// capability descriptor, per spec.md §4.1: "reject any request violating
// the descriptor's input_requirements before any process is launched."
func (r Request) ValidateAgainst(d capability.Descriptor) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !d.AcceptsTarget(r.Target.Kind) {
		return fmt.Errorf("scan request %s: tool %q does not accept target kind %q", r.ScanID, d.ToolID, r.Target.Kind)
	}
	if d.InputRequirements.RequiresRunningApp && r.Target.Kind != capability.TargetHTTPURL {
		return fmt.Errorf("scan request %s: tool %q requires a running application (HTTP_URL target)", r.ScanID, d.ToolID)
	}
	if d.Execution.RequiresNetwork && !r.NetworkAllowed {
		return fmt.Errorf("scan request %s: tool %q requires network access but network_allowed is false", r.ScanID, d.ToolID)
	}
	if r.Options.LanguageHint != "" && len(d.SupportedLanguages) > 0 && !d.SupportsLanguage(r.Options.LanguageHint) {
		return fmt.Errorf("scan request %s: tool %q does not support language %q", r.ScanID, d.ToolID, r.Options.LanguageHint)
	}
	return nil
}
