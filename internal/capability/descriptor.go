// Package capability defines the Capability Descriptor (spec.md §3.1):
// a tool's self-description used by the registry for selection and by
// adapters for input validation.
package capability

import (
	"fmt"
	"time"
)

// Category is one of the tool classes the orchestrator understands.
type Category string

const (
	CategorySAST      Category = "SAST"
	CategorySCA       Category = "SCA"
	CategoryDAST      Category = "DAST"
	CategoryIAST      Category = "IAST"
	CategorySecrets   Category = "SECRETS"
	CategoryContainer Category = "CONTAINER"
	CategoryFuzzing   Category = "FUZZING"
)

// TargetKind enumerates the shapes a scan target can take.
type TargetKind string

const (
	TargetLocalPath      TargetKind = "LOCAL_PATH"
	TargetGitRepo        TargetKind = "GIT_REPO"
	TargetContainerImage TargetKind = "CONTAINER_IMAGE"
	TargetHTTPURL        TargetKind = "HTTP_URL"
)

// InputRequirements describes what an adapter needs from a scan request
// before it can run.
type InputRequirements struct {
	RequiresSource      bool
	RequiresBinary      bool
	RequiresRunningApp  bool
	RequiresManifest    bool
	SupportedVCSKinds   []string
	AcceptedTargetKinds []TargetKind
}

// OutputSchema names the tool's native output format for documentation
// and for the broker's tools/list response.
type OutputSchema struct {
	NativeFormat   string
	ExpectedFields []string
}

// Execution describes the resource envelope an adapter needs to run.
type Execution struct {
	DefaultTimeoutSeconds int
	MinMemoryMB           int
	MinCPUCores           float64
	RequiresNetwork       bool
}

// Metadata carries provenance information about the adapter registration.
type Metadata struct {
	License          string
	DocsURL          string
	AdapterVersion   string
	RegistrationTime time.Time
}

// Descriptor is a tool's identity and abilities (spec.md §3.1).
type Descriptor struct {
	ToolID              string
	ToolName            string
	ToolVersion         string
	Category            Category
	Vendor              string
	Description         string
	SupportedLanguages  []string
	DetectionTypes      []string
	CWECoverage         []int
	InputRequirements   InputRequirements
	OutputSchema        OutputSchema
	Execution           Execution
	Metadata            Metadata
}

// Validate enforces the invariants of spec.md §3.1 that are checkable in
// isolation (tool_id global uniqueness is enforced by the registry, not
// here, since it requires knowledge of sibling descriptors).
func (d Descriptor) Validate() error {
	if d.ToolID == "" {
		return fmt.Errorf("capability descriptor: tool_id must not be empty")
	}
	if d.ToolName == "" {
		return fmt.Errorf("capability descriptor %q: tool_name must not be empty", d.ToolID)
	}
	if err := validCategory(d.Category); err != nil {
		return fmt.Errorf("capability descriptor %q: %w", d.ToolID, err)
	}
	for _, cwe := range d.CWECoverage {
		if cwe <= 0 {
			return fmt.Errorf("capability descriptor %q: cwe_coverage entries must be positive, got %d", d.ToolID, cwe)
		}
	}
	if d.Execution.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("capability descriptor %q: execution.timeout must be > 0", d.ToolID)
	}
	if d.InputRequirements.RequiresRunningApp && !containsTargetKind(d.InputRequirements.AcceptedTargetKinds, TargetHTTPURL) {
		return fmt.Errorf("capability descriptor %q: requires_running_app implies HTTP_URL must be an accepted target kind", d.ToolID)
	}
	return nil
}

func validCategory(c Category) error {
	switch c {
	case CategorySAST, CategorySCA, CategoryDAST, CategoryIAST, CategorySecrets, CategoryContainer, CategoryFuzzing:
		return nil
	default:
		return fmt.Errorf("unknown category %q", c)
	}
}

func containsTargetKind(kinds []TargetKind, want TargetKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// AcceptsTarget reports whether the descriptor declares support for the
// given target kind.
func (d Descriptor) AcceptsTarget(kind TargetKind) bool {
	return containsTargetKind(d.InputRequirements.AcceptedTargetKinds, kind)
}

// SupportsLanguage reports whether language is in the declared support set
// (case-sensitive; adapters register lowercase language identifiers).
func (d Descriptor) SupportsLanguage(language string) bool {
	for _, l := range d.SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// CoversCWE reports whether the descriptor claims coverage for a CWE id.
func (d Descriptor) CoversCWE(id int) bool {
	for _, c := range d.CWECoverage {
		if c == id {
			return true
		}
	}
	return false
}
