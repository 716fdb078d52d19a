// Package orcherrors defines the typed error taxonomy shared by adapters,
// the scheduler, the broker, and the workflow engine (spec.md §7).
//
// Every subsystem boundary returns one of these types rather than an
// ad hoc string, so callers can dispatch on error class with errors.As
// instead of parsing messages.
package orcherrors

import "fmt"

// InvalidInput means the request violates the adapter's capability
// descriptor or a schema. Never retried.
type InvalidInput struct {
	Reason    string
	FieldPath string
}

func (e *InvalidInput) Error() string {
	if e.FieldPath != "" {
		return fmt.Sprintf("invalid input at %s: %s", e.FieldPath, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// ToolMissing means the adapter's backing binary or service could not be
// located. Never retried, unless a fallback adapter is declared by the
// caller.
type ToolMissing struct {
	ToolID string
	Detail string
}

func (e *ToolMissing) Error() string {
	return fmt.Sprintf("tool %q missing: %s", e.ToolID, e.Detail)
}

// ExecutionFailed means the underlying process or call returned a non-zero
// or otherwise unsuccessful outcome. Retried only if ExitCode is in the
// scheduler's configured retryable set.
type ExecutionFailed struct {
	ExitCode   int
	StderrTail string
}

func (e *ExecutionFailed) Error() string {
	return fmt.Sprintf("execution failed (exit %d): %s", e.ExitCode, e.StderrTail)
}

// Timeout means a task's deadline elapsed before it completed. Always
// retryable up to max_retries; fatal for the node after exhaustion.
type Timeout struct {
	AfterSeconds float64
	Partial      bool
}

func (e *Timeout) Error() string {
	if e.Partial {
		return fmt.Sprintf("timeout after %.1fs (partial output available)", e.AfterSeconds)
	}
	return fmt.Sprintf("timeout after %.1fs", e.AfterSeconds)
}

// ParseError means the adapter could not turn native output into findings.
// Deterministic given the same input; never retried.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Detail)
}

// Canceled means the caller explicitly canceled the operation.
type Canceled struct {
	Reason string
}

func (e *Canceled) Error() string {
	if e.Reason == "" {
		return "canceled"
	}
	return fmt.Sprintf("canceled: %s", e.Reason)
}

// Retryable reports whether err belongs to a class the scheduler is
// permitted to retry by default (spec.md §4.4: Timeout and
// ExecutionFailed with a whitelisted exit code). Callers that maintain
// their own exit-code whitelist should check ExecutionFailed themselves;
// this helper only recognizes Timeout unconditionally.
func Retryable(err error) bool {
	switch err.(type) {
	case *Timeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether err must never be retried (InvalidInput and
// ParseError are deterministic on the same input).
func Fatal(err error) bool {
	switch err.(type) {
	case *InvalidInput, *ParseError:
		return true
	default:
		return false
	}
}
