// Package triage adds an optional, best-effort remediation suggestion to
// CRITICAL/HIGH findings during the validation node (spec.md §10's
// supplemented "LLM-assisted triage" feature; nothing in original_source
// has an equivalent, so this is grounded on the pack's own langchaingo
// consumers instead, principally venslabs-vens's pkg/llm/llmfactory.New
// backend switch and pkg/generator's llms.MessageContent/GenerateContent
// call shape).
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/severity"
)

const systemPrompt = "You are a security triage assistant. Given a single vulnerability finding, " +
	"respond with two to four sentences of concrete remediation guidance. Do not restate the finding."

// Triager drafts a remediation suggestion for one finding. Implementations
// must be safe to call concurrently and must never block indefinitely; the
// caller enforces its own timeout via ctx.
type Triager interface {
	Suggest(ctx context.Context, f finding.Finding) (string, error)
}

// llmTriager wraps a langchaingo llms.Model.
type llmTriager struct {
	model llms.Model
}

// New builds a Triager from cfg, or returns (nil, nil) when triage is
// disabled or no backend is configured — callers treat a nil Triager as
// "skip this step", never as an error.
func New(cfg config.Triage) (Triager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	model, err := newModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("triage backend %q: %w", cfg.Backend, err)
	}
	return &llmTriager{model: model}, nil
}

func newModel(cfg config.Triage) (llms.Model, error) {
	switch cfg.Backend {
	case "anthropic":
		if cfg.Model != "" {
			return anthropic.New(anthropic.WithModel(cfg.Model))
		}
		return anthropic.New()
	case "openai":
		if cfg.Model != "" {
			return openai.New(openai.WithModel(cfg.Model))
		}
		return openai.New()
	default:
		return nil, fmt.Errorf("unsupported backend %q, want \"anthropic\" or \"openai\"", cfg.Backend)
	}
}

func (t *llmTriager) Suggest(ctx context.Context, f finding.Finding) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, humanPrompt(f)),
	}
	resp, err := t.model.GenerateContent(ctx, msgs, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("triage backend returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func humanPrompt(f finding.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vulnerability: %s\n", f.VulnerabilityType.Name)
	if f.VulnerabilityType.CWEID != 0 {
		fmt.Fprintf(&b, "CWE: CWE-%d\n", f.VulnerabilityType.CWEID)
	}
	fmt.Fprintf(&b, "Severity: %s\n", f.Severity.Level)
	fmt.Fprintf(&b, "Location: %s:%d\n", f.Location.FilePath, f.Location.LineStart)
	if f.Description.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", f.Description.Summary)
	}
	return b.String()
}

// Annotate runs t against every finding at or above HIGH severity, writing
// a successful suggestion into Description.Remediation and tagging the
// finding. A failed or nil Triager never mutates findings or returns an
// error: triage is strictly additive per spec.md §10, and a triage outage
// must not prevent a workflow from reaching a terminal phase. Failures are
// reported to log instead.
func Annotate(ctx context.Context, t Triager, findings []finding.Finding, log hclog.Logger) {
	if t == nil {
		return
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	for i := range findings {
		if severity.Rank(findings[i].Severity.Level) < severity.Rank(severity.High) {
			continue
		}
		suggestion, err := t.Suggest(ctx, findings[i])
		if err != nil {
			log.Warn("triage suggestion failed", "finding_id", findings[i].FindingID, "error", err)
			continue
		}
		if suggestion == "" {
			continue
		}
		findings[i].Description.Remediation = suggestion
		findings[i].AddTag("triaged")
	}
}
