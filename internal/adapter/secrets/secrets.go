// Package secrets is a SECRETS-category adapter fronting trufflehog's
// filesystem scan mode, grounded on the teacher's
// plugins/trufflehog/trufflehog.go (exec.Command invocation, NDJSON-to-file
// capture idiom) re-targeted to the Adapter contract and to trufflehog's
// native NDJSON result stream instead of a file redirect.
package secrets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/cwe"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// Adapter fronts trufflehog. Binary is the executable name or path.
type Adapter struct {
	Binary string
}

// New returns an Adapter invoking "trufflehog" on PATH.
func New() *Adapter {
	return &Adapter{Binary: "trufflehog"}
}

func (a *Adapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:      "trufflehog",
		ToolName:    "Trufflehog",
		Category:    capability.CategorySecrets,
		Description: "Trufflehog filesystem secret scan, NDJSON output",
		SupportedLanguages: []string{
			"python", "javascript", "typescript", "go", "java", "ruby", "c", "cpp", "*",
		},
		DetectionTypes: []string{"regex-match", "entropy"},
		InputRequirements: capability.InputRequirements{
			RequiresSource:      true,
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetLocalPath, capability.TargetGitRepo},
		},
		OutputSchema: capability.OutputSchema{
			NativeFormat:   "trufflehog-ndjson",
			ExpectedFields: []string{"DetectorName", "SourceMetadata"},
		},
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 300,
			MinMemoryMB:           256,
		},
	}
}

func (a *Adapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *Adapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	binary := a.Binary
	if binary == "" {
		binary = "trufflehog"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return adapter.NativeOutput{}, &orcherrors.ToolMissing{ToolID: "trufflehog", Detail: err.Error()}
	}

	args := []string{"--json", "--no-verification", "filesystem", req.Target.Path}
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
		return adapter.NativeOutput{Diagnostics: diag}, &orcherrors.ExecutionFailed{ExitCode: exitCode, StderrTail: diag.StderrTail}
	}

	return adapter.NativeOutput{Payload: stdout.Bytes(), Diagnostics: diag}, nil
}

// secretRecord mirrors a single line of trufflehog's --json result stream.
type secretRecord struct {
	DetectorName string `json:"DetectorName"`
	Verified     bool   `json:"Verified"`
	Raw          string `json:"Raw"`
	SourceMetadata struct {
		Data struct {
			Filesystem struct {
				File string `json:"file"`
				Line int    `json:"line"`
			} `json:"Filesystem"`
		} `json:"Data"`
	} `json:"SourceMetadata"`
}

func (a *Adapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out.Payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var findings []finding.Finding
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec secretRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("decoding trufflehog output line %d: %v", lineNo, err)}
		}
		findings = append(findings, findingFromRecord(req, rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("reading trufflehog output: %v", err)}
	}
	return findings, nil
}

func findingFromRecord(req scan.Request, rec secretRecord) finding.Finding {
	nativeLevel := "high"
	if rec.Verified {
		nativeLevel = "critical"
	}
	normalized := severity.Normalize(nativeLevel)
	cweID, _ := cwe.ExtractFirst("CWE-798 hardcoded credentials " + rec.DetectorName)

	confidence := 60
	if rec.Verified {
		confidence = 95
	}

	f := finding.Finding{
		ScanSessionID: req.ScanID,
		VulnerabilityType: finding.VulnerabilityType{
			Name:  "hardcoded-secret:" + rec.DetectorName,
			CWEID: cweID,
		},
		Location: finding.Location{
			FilePath:  rec.SourceMetadata.Data.Filesystem.File,
			LineStart: rec.SourceMetadata.Data.Filesystem.Line,
			LineEnd:   rec.SourceMetadata.Data.Filesystem.Line,
		},
		Severity: finding.Severity{Level: normalized.Level},
		Confidence: finding.Confidence{
			Score: confidence,
		},
		SourceTool: []finding.SourceTool{{
			ToolID:         "trufflehog",
			RuleID:         rec.DetectorName,
			NativeSeverity: nativeLevel,
			RawOutput:      rec.Raw,
		}},
		Description: finding.Description{
			Summary: fmt.Sprintf("%s secret detected", rec.DetectorName),
		},
		Metadata: finding.Metadata{
			DetectedAt: time.Now().UTC(),
			Language:   req.Options.LanguageHint,
		},
		VerificationStatus: finding.VerificationPending,
	}
	if rec.Verified {
		f.VerificationStatus = finding.VerificationVerified
	}
	f.AssignID()
	return f
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
