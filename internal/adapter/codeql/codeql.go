// Package codeql is a SAST adapter fronting the codeql CLI's two-step
// database create / database analyze flow, grounded on the teacher's
// plugins/codeql/codeql.go (createDatabase/analyzeDatabase temp-dir
// idiom) and internal/sarif/sarif.go (go-sarif report reading),
// re-targeted to the Adapter contract instead of scan-io's plugin RPC
// surface.
package codeql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
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

// Adapter fronts codeql. Binary is the executable name or path; DBLanguage
// selects the database language ("javascript", "python", "go", ...).
type Adapter struct {
	Binary     string
	DBLanguage string
}

// New returns an Adapter invoking "codeql" on PATH for the given database
// language.
func New(dbLanguage string) *Adapter {
	return &Adapter{Binary: "codeql", DBLanguage: dbLanguage}
}

func (a *Adapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:      "codeql",
		ToolName:    "CodeQL",
		Category:    capability.CategorySAST,
		Description: "GitHub CodeQL database create/analyze, SARIF output",
		SupportedLanguages: []string{
			"javascript", "typescript", "python", "go", "java", "csharp", "cpp", "ruby",
		},
		DetectionTypes: []string{"dataflow", "pattern-match"},
		InputRequirements: capability.InputRequirements{
			RequiresSource:      true,
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetLocalPath, capability.TargetGitRepo},
		},
		OutputSchema: capability.OutputSchema{
			NativeFormat:   "sarif",
			ExpectedFields: []string{"runs[].results[]"},
		},
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 1800,
			MinMemoryMB:           2048,
		},
	}
}

func (a *Adapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *Adapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	binary := a.Binary
	if binary == "" {
		binary = "codeql"
	}
	language := a.DBLanguage
	if language == "" {
		language = req.Options.LanguageHint
	}

	if _, err := exec.LookPath(binary); err != nil {
		return adapter.NativeOutput{}, &orcherrors.ToolMissing{ToolID: "codeql", Detail: err.Error()}
	}

	workRoot := ec.WorkDir
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	dbDir, err := os.MkdirTemp(workRoot, "codeql_db_")
	if err != nil {
		return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("creating temp db dir: %v", err)}
	}
	defer os.RemoveAll(dbDir)

	start := time.Now()
	createArgs := []string{"database", "create", dbDir, "--language", language, "--source-root", req.Target.Path}
	if out, err := runCommand(ctx, binary, createArgs); err != nil {
		return commandFailure(err, ctx, out, time.Since(start), createArgs)
	}

	resultsPath := filepath.Join(dbDir, "results.sarif")
	analyzeArgs := []string{"database", "analyze", dbDir, "--format", "sarifv2.1.0", "--output", resultsPath}
	if out, err := runCommand(ctx, binary, analyzeArgs); err != nil {
		return commandFailure(err, ctx, out, time.Since(start), analyzeArgs)
	}

	payload, err := os.ReadFile(resultsPath)
	if err != nil {
		return adapter.NativeOutput{}, &orcherrors.ParseError{Detail: fmt.Sprintf("reading codeql sarif output: %v", err)}
	}

	diag := adapter.Diagnostics{
		CommandHash: commandHash(append(createArgs, analyzeArgs...)),
		Duration:    time.Since(start),
	}
	return adapter.NativeOutput{Payload: payload, Diagnostics: diag}, nil
}

func runCommand(ctx context.Context, binary string, args []string) (*bytes.Buffer, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return &out, err
}

func commandFailure(err error, ctx context.Context, out *bytes.Buffer, duration time.Duration, args []string) (adapter.NativeOutput, error) {
	diag := adapter.Diagnostics{CommandHash: commandHash(args), Duration: duration, StderrTail: tail(out.String(), 4096)}
	if ctx.Err() == context.DeadlineExceeded {
		return adapter.NativeOutput{Diagnostics: diag}, &orcherrors.Timeout{AfterSeconds: duration.Seconds()}
	}
	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	diag.ExitCode = exitCode
	return adapter.NativeOutput{Diagnostics: diag}, &orcherrors.ExecutionFailed{ExitCode: exitCode, StderrTail: diag.StderrTail}
}

func (a *Adapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	var report sarif.Report
	if err := json.Unmarshal(out.Payload, &report); err != nil {
		return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("decoding codeql sarif output: %v", err)}
	}

	var findings []finding.Finding
	for _, run := range report.Runs {
		for _, result := range run.Results {
			findings = append(findings, findingFromResult(req, result, out))
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
		Severity: finding.Severity{Level: normalized.Level},
		Confidence: finding.Confidence{
			Score: confidenceScore(normalized),
		},
		SourceTool: []finding.SourceTool{{
			ToolID:         "codeql",
			RuleID:         ruleID,
			NativeSeverity: nativeLevel,
			RawOutput:      string(out.Payload),
		}},
		Description: finding.Description{Summary: message},
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
		return 85
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
