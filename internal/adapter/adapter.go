// Package adapter defines the uniform Tool Adapter contract every
// external scanner is fronted by (spec.md §4.1).
package adapter

import (
	"context"
	"time"

	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// NativeOutput is the opaque payload an adapter's Execute produces and its
// own Parse consumes. Diagnostics travel alongside it so Run can log
// command-line hash, duration, and resource usage without adapters
// re-implementing that plumbing.
type NativeOutput struct {
	Payload    []byte
	Diagnostics Diagnostics
	Partial    bool // true if Execute timed out but streamed partial output
}

// Diagnostics captures the structured facts spec.md §4.1 requires Execute
// to emit alongside its payload.
type Diagnostics struct {
	CommandHash string
	Duration    time.Duration
	ExitCode    int
	StderrTail  string
}

// ExecutionContext carries the run-time envelope Execute must honor:
// timeout, working directory, network allowance, and cancellation, all
// via ctx and WorkDir/NetworkAllowed.
type ExecutionContext struct {
	WorkDir        string
	NetworkAllowed bool
	Deadline       time.Time
}

// Adapter fronts one external tool with the four operations of
// spec.md §4.1. Implementations must not retain state across calls and
// must not perform cross-adapter correlation.
type Adapter interface {
	// Describe returns the tool's capability descriptor. Must be pure
	// and stable (spec.md §8, "Adapter purity").
	Describe() capability.Descriptor

	// Validate rejects any request violating the descriptor's
	// input_requirements before any process is launched.
	Validate(req scan.Request) error

	// Execute invokes the tool and returns its native output, honoring
	// ctx's deadline and cancellation.
	Execute(ctx context.Context, req scan.Request, ec ExecutionContext) (NativeOutput, error)

	// Parse deterministically turns native output into unified findings.
	Parse(out NativeOutput, req scan.Request) ([]finding.Finding, error)
}

// Run is the framework-provided orchestration validate ⇒ execute ⇒ parse
// (spec.md §4.1), emitting the three named stage events. Every finding
// produced also gets a finding_emitted event, and every finding produced
// from partial output is tagged "partial" (spec.md §4.1's Timeout(partial)
// note). The returned Diagnostics is whatever Execute reported even when
// Run itself fails, so a caller surfacing the failure (the broker's
// tools/call response, spec.md §6) can still report command_hash,
// exit_code, and stderr_tail alongside the error.
func Run(ctx context.Context, a Adapter, req scan.Request, ec ExecutionContext, sink events.Sink) ([]finding.Finding, Diagnostics, error) {
	toolID := a.Describe().ToolID

	if err := a.Validate(req); err != nil {
		return nil, Diagnostics{}, err
	}
	sink.Publish(events.Event{ToolID: toolID, Kind: events.AdapterValidated, Status: "ok"})

	out, err := a.Execute(ctx, req, ec)
	if err != nil {
		sink.Publish(events.Event{ToolID: toolID, Kind: events.AdapterExecuted, Status: "error", Detail: err.Error()})
		return nil, out.Diagnostics, err
	}
	sink.Publish(events.Event{ToolID: toolID, Kind: events.AdapterExecuted, Status: "ok"})

	findings, err := a.Parse(out, req)
	if err != nil {
		sink.Publish(events.Event{ToolID: toolID, Kind: events.AdapterParsed, Status: "error", Detail: err.Error()})
		return nil, out.Diagnostics, err
	}

	if out.Partial {
		for i := range findings {
			findings[i].AddTag("partial")
		}
	}
	for _, f := range findings {
		sink.Publish(events.Event{ToolID: toolID, Kind: events.FindingEmitted, FindingID: f.FindingID})
	}
	sink.Publish(events.Event{ToolID: toolID, Kind: events.AdapterParsed, Status: "ok"})

	return findings, out.Diagnostics, nil
}
