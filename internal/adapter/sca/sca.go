// Package sca is a software-composition-analysis adapter that decodes a
// CycloneDX SBOM+vulnerability document, grounded on the cyclonedx-go
// encoder usage in venslabs-vens's pkg/outputhandler/cyclonedxvex.go (this
// adapter uses the library's symmetric NewBOMDecoder to read what that
// encoder shape writes) and on the teacher's plugin exec.Command idiom for
// invoking a scanning binary.
package sca

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/CycloneDX/cyclonedx-go"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/cwe"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// Adapter fronts a CycloneDX-emitting SCA scanner (grype, osv-scanner, and
// similar tools all support "--format cyclonedx-json"). Binary names the
// executable; OutputFormat is passed through to it verbatim.
type Adapter struct {
	Binary string
}

// New returns an Adapter invoking "grype" on PATH.
func New() *Adapter {
	return &Adapter{Binary: "grype"}
}

func (a *Adapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:      "sca-cyclonedx",
		ToolName:    "SCA (CycloneDX)",
		Category:    capability.CategorySCA,
		Description: "Dependency vulnerability scan, CycloneDX SBOM+VEX output",
		SupportedLanguages: []string{
			"*",
		},
		DetectionTypes: []string{"manifest-lookup"},
		InputRequirements: capability.InputRequirements{
			RequiresManifest:    true,
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetLocalPath, capability.TargetGitRepo},
		},
		OutputSchema: capability.OutputSchema{
			NativeFormat:   "cyclonedx-json",
			ExpectedFields: []string{"vulnerabilities[]", "components[]"},
		},
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 300,
			MinMemoryMB:           256,
			RequiresNetwork:       true,
		},
	}
}

func (a *Adapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *Adapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	binary := a.Binary
	if binary == "" {
		binary = "grype"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return adapter.NativeOutput{}, &orcherrors.ToolMissing{ToolID: "sca-cyclonedx", Detail: err.Error()}
	}

	args := []string{"dir:" + req.Target.Path, "--output", "cyclonedx-json"}
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

func (a *Adapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	var bom cyclonedx.BOM
	decoder := cyclonedx.NewBOMDecoder(bytes.NewReader(out.Payload), cyclonedx.BOMFileFormatJSON)
	if err := decoder.Decode(&bom); err != nil {
		return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("decoding cyclonedx sbom: %v", err)}
	}
	if bom.Vulnerabilities == nil {
		return nil, nil
	}

	componentsByRef := indexComponents(bom.Components)

	var findings []finding.Finding
	for _, vuln := range *bom.Vulnerabilities {
		findings = append(findings, findingFromVulnerability(req, vuln, componentsByRef, out))
	}
	return findings, nil
}

func indexComponents(components *[]cyclonedx.Component) map[string]cyclonedx.Component {
	idx := make(map[string]cyclonedx.Component)
	if components == nil {
		return idx
	}
	for _, c := range *components {
		idx[c.BOMRef] = c
	}
	return idx
}

func findingFromVulnerability(req scan.Request, vuln cyclonedx.Vulnerability, components map[string]cyclonedx.Component, out adapter.NativeOutput) finding.Finding {
	componentRef, purl := "", ""
	if vuln.Affects != nil && len(*vuln.Affects) > 0 {
		componentRef = (*vuln.Affects)[0].Ref
	}
	if c, ok := components[componentRef]; ok {
		purl = c.PackageURL
	}

	nativeLevel := ""
	var cvss *float64
	if vuln.Ratings != nil && len(*vuln.Ratings) > 0 {
		rating := (*vuln.Ratings)[0]
		nativeLevel = string(rating.Severity)
		if rating.Score != nil {
			cvss = rating.Score
		}
	}
	normalized := severity.Normalize(nativeLevel)

	cweID := 0
	if vuln.CWEs != nil && len(*vuln.CWEs) > 0 {
		cweID = int((*vuln.CWEs)[0])
	} else {
		cweID, _ = cwe.ExtractFirst(vuln.Description)
	}

	description := vuln.Description
	if purl != "" {
		description = fmt.Sprintf("%s (%s)", description, purl)
	}

	f := finding.Finding{
		ScanSessionID: req.ScanID,
		VulnerabilityType: finding.VulnerabilityType{
			Name:  vuln.ID,
			CWEID: cweID,
		},
		Location: finding.Location{
			FilePath: purl,
		},
		Severity: finding.Severity{
			Level:     normalized.Level,
			CVSSScore: cvss,
		},
		Confidence: finding.Confidence{
			Score: confidenceScore(normalized),
		},
		SourceTool: []finding.SourceTool{{
			ToolID:         "sca-cyclonedx",
			RuleID:         vuln.ID,
			NativeSeverity: nativeLevel,
			RawOutput:      string(out.Payload),
		}},
		Description: finding.Description{
			Summary: description,
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
		return 75
	}
	return 40
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
