// Package semgrep is a SAST adapter fronting the semgrep binary,
// grounded on the teacher's plugins/semgrep/semgrep.go (exec.Command
// invocation shape and --sarif output) and internal/sarif/sarif.go
// (go-sarif report reading), re-targeted to the Adapter contract of
// spec.md §4.1 instead of scan-io's plugin RPC surface.
package semgrep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/cwe"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// Adapter fronts semgrep. Binary is the executable name or path;
// tests substitute a fake script.
type Adapter struct {
	Binary string
}

// New returns an Adapter invoking "semgrep" on PATH.
func New() *Adapter {
	return &Adapter{Binary: "semgrep"}
}

func (a *Adapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:      "semgrep",
		ToolName:    "Semgrep",
		Category:    capability.CategorySAST,
		Description: "Semgrep static analysis, SARIF output",
		SupportedLanguages: []string{
			"python", "javascript", "typescript", "go", "java", "ruby", "c", "cpp",
		},
		DetectionTypes: []string{"pattern-match"},
		InputRequirements: capability.InputRequirements{
			RequiresSource:      true,
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetLocalPath, capability.TargetGitRepo},
		},
		OutputSchema: capability.OutputSchema{
			NativeFormat:   "sarif",
			ExpectedFields: []string{"runs[].results[]"},
		},
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 600,
			MinMemoryMB:           512,
		},
	}
}

func (a *Adapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *Adapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	ruleset := "auto"
	if len(req.Options.CustomRules) > 0 {
		ruleset = req.Options.CustomRules[0]
	}

	args := []string{"--config", ruleset, "--sarif", "--quiet", req.Target.Path}
	binary := a.Binary
	if binary == "" {
		binary = "semgrep"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return adapter.NativeOutput{}, &orcherrors.ToolMissing{ToolID: "semgrep", Detail: err.Error()}
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if ec.WorkDir != "" {
		cmd.Dir = ec.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	diag := adapter.Diagnostics{
		CommandHash: commandHash(cmd.Args),
		Duration:    duration,
		StderrTail:  tail(stderr.String(), 4096),
	}

	if ctx.Err() == context.DeadlineExceeded {
		return adapter.NativeOutput{Payload: stdout.Bytes(), Diagnostics: diag, Partial: stdout.Len() > 0}, &orcherrors.Timeout{
			AfterSeconds: duration.Seconds(),
			Partial:      stdout.Len() > 0,
		}
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		diag.ExitCode = exitCode
		// semgrep exits 1 when findings are present; that is success.
		if exitCode != 1 {
			return adapter.NativeOutput{Diagnostics: diag}, &orcherrors.ExecutionFailed{ExitCode: exitCode, StderrTail: diag.StderrTail}
		}
	}

	return adapter.NativeOutput{Payload: stdout.Bytes(), Diagnostics: diag}, nil
}

func (a *Adapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	var report sarif.Report
	if err := json.Unmarshal(out.Payload, &report); err != nil {
		return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("decoding semgrep sarif output: %v", err)}
	}

	var findings []finding.Finding
	for _, run := range report.Runs {
		for _, result := range run.Results {
			f := findingFromResult(req, result, out)
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func findingFromResult(req scan.Request, result *sarif.Result, out adapter.NativeOutput) finding.Finding {
	ruleID := ""
	if result.RuleID != nil {
		ruleID = *result.RuleID
	}
	message := ""
	if result.Message.Text != nil {
		message = *result.Message.Text
	}

	filePath, lineStart, lineEnd, colStart, colEnd := "", 0, 0, 0, 0
	if len(result.Locations) > 0 {
		loc := result.Locations[0]
		if loc.PhysicalLocation != nil && loc.PhysicalLocation.ArtifactLocation != nil && loc.PhysicalLocation.ArtifactLocation.URI != nil {
			filePath = *loc.PhysicalLocation.ArtifactLocation.URI
		}
		if loc.PhysicalLocation != nil && loc.PhysicalLocation.Region != nil {
			r := loc.PhysicalLocation.Region
			if r.StartLine != nil {
				lineStart = *r.StartLine
			}
			if r.EndLine != nil {
				lineEnd = *r.EndLine
			} else {
				lineEnd = lineStart
			}
			if r.StartColumn != nil {
				colStart = *r.StartColumn
			}
			if r.EndColumn != nil {
				colEnd = *r.EndColumn
			}
		}
	}

	nativeLevel := "warning"
	if result.Level != nil {
		nativeLevel = *result.Level
	}
	normalized := severity.Normalize(nativeLevel)

	cweID, _ := cwe.ExtractFirst(ruleID + " " + message)

	f := finding.Finding{
		ScanSessionID: req.ScanID,
		VulnerabilityType: finding.VulnerabilityType{
			Name:  ruleID,
			CWEID: cweID,
		},
		Location: finding.Location{
			FilePath:    filePath,
			LineStart:   lineStart,
			LineEnd:     lineEnd,
			ColumnStart: colStart,
			ColumnEnd:   colEnd,
		},
		Severity: finding.Severity{
			Level: normalized.Level,
		},
		Confidence: finding.Confidence{
			Score: confidenceScore(normalized),
		},
		SourceTool: []finding.SourceTool{{
			ToolID:         "semgrep",
			RuleID:         ruleID,
			NativeSeverity: nativeLevel,
			RawOutput:      string(out.Payload),
		}},
		Description: finding.Description{
			Summary: message,
		},
		Metadata: finding.Metadata{
			DetectedAt: time.Now().UTC(),
			Language:   req.Options.LanguageHint,
		},
		VerificationStatus: finding.VerificationPending,
	}
	if !normalized.Recognized {
		f.Confidence.Reason = severity.UnmappedReason(nativeLevel)
	}
	f.AssignID()
	return f
}

func confidenceScore(n severity.Normalized) int {
	if n.Recognized {
		return 80
	}
	return 50
}

func commandHash(args []string) string {
	h := 0
	for _, a := range args {
		for _, c := range a {
			h = h*31 + int(c)
		}
	}
	return fmt.Sprintf("%x", h)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
