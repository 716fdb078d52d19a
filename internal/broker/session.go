package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/events"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/registry"
	"github.com/scanio-git/orchestrator/internal/scan"
)

// SessionState names one state of the broker session lifecycle
// (spec.md §4.2 "State machine of a broker session").
type SessionState int

const (
	Uninitialized SessionState = iota
	Initialized
	Serving
	Closing
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initialized:
		return "INITIALIZED"
	case Serving:
		return "SERVING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ResourceReader answers resources/list and resources/read for
// scan://results/{scan_id} and scan://history URIs. The workflow
// package's persistence-backed store implements this.
type ResourceReader interface {
	ListResources() []ResourceDescription
	ReadResource(uri string) (ResourceContent, error)
}

// Session serves one JSON-RPC line-protocol connection over rwc,
// dispatching against reg. It is not safe for concurrent use by
// multiple goroutines reading rwc, but Publish-driven event fan-out
// happens independently on the ring buffer.
type Session struct {
	rwc      io.ReadWriteCloser
	reg      *registry.Registry
	resource ResourceReader
	log      hclog.Logger
	sink     events.Sink

	mu          sync.Mutex
	state       SessionState
	maxParallel int
	inFlight    int
}

// NewSession constructs a Session in the UNINITIALIZED state. maxParallel
// bounds concurrent tools/call in flight (spec.md §5, "Backpressure");
// zero means "use the registry's default of 4".
func NewSession(rwc io.ReadWriteCloser, reg *registry.Registry, resource ResourceReader, log hclog.Logger, sink events.Sink, maxParallel int) *Session {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Session{
		rwc:         rwc,
		reg:         reg,
		resource:    resource,
		log:         log,
		sink:        sink,
		state:       Uninitialized,
		maxParallel: maxParallel,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close transitions the session to CLOSING then CLOSED once the
// dispatch loop observes it, in accordance with "in-flight requests
// are allowed to complete until they hit their own deadlines."
func (s *Session) Close() {
	s.mu.Lock()
	if s.state != Closed {
		s.state = Closing
	}
	s.mu.Unlock()
}

// Serve reads one JSON-RPC request per line from rwc until ctx is
// canceled, the peer closes the connection, or Close is called and
// every in-flight tools/call has finished. Serve is a blocking call
// meant to run on its own goroutine.
func (s *Session) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.rwc)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(s.rwc)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.finalizeClose()
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(errResp(nil, CodeParseErrorWire, "invalid JSON-RPC request", err.Error()))
			continue
		}

		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("broker: writing response: %w", err)
		}

		s.mu.Lock()
		closing := s.state == Closing && s.inFlight == 0
		s.mu.Unlock()
		if closing {
			break
		}
	}
	s.finalizeClose()
	return scanner.Err()
}

func (s *Session) finalizeClose() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (s *Session) dispatch(ctx context.Context, req Request) Response {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if req.Method != "initialize" && state == Uninitialized {
		return errResp(req.ID, CodeNotInitialized, "session not initialized", "")
	}
	if state == Closing || state == Closed {
		return errResp(req.ID, CodeShuttingDown, "session is shutting down", "")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		return errResp(req.ID, CodeMethodNotFound, "method not found: "+req.Method, "")
	}
}

func (s *Session) handleInitialize(req Request) Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResp(req.ID, CodeInvalidParams, "invalid initialize params", err.Error())
		}
	}

	s.mu.Lock()
	s.state = Initialized
	s.mu.Unlock()

	s.log.Info("session initialized", "client", params.ClientInfo.Name, "protocolVersion", params.ProtocolVersion)

	result := InitializeResult{
		ServerInfo:   ClientInfo{Name: "orchestrator-broker", Version: "1.0"},
		Capabilities: map[string]interface{}{"tools": true, "resources": true},
	}

	s.mu.Lock()
	s.state = Serving
	s.mu.Unlock()

	return okResp(req.ID, result)
}

func (s *Session) handleToolsList(req Request) Response {
	descriptors := s.reg.List()
	tools := make([]ToolDescription, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, ToolDescription{
			Name:        d.ToolID,
			Description: d.Description,
			InputSchema: d.InputRequirements,
			Category:    string(d.Category),
			Available:   true,
			Capability:  d,
		})
	}
	return okResp(req.ID, ToolsListResult{Tools: tools})
}

func (s *Session) handleToolsCall(ctx context.Context, req Request) Response {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResp(req.ID, CodeInvalidParams, "invalid tools/call params", err.Error())
	}

	s.mu.Lock()
	if s.inFlight >= s.maxParallel {
		s.mu.Unlock()
		return errResp(req.ID, CodeBusy, "too many concurrent tools/call", "")
	}
	s.inFlight++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	a, release, err := s.reg.Acquire(params.Name)
	if err != nil {
		return errResp(req.ID, CodeToolMissing, err.Error(), "")
	}
	defer release()

	var scanReq scan.Request
	if err := json.Unmarshal(params.Arguments, &scanReq); err != nil {
		return errResp(req.ID, CodeInvalidScanInput, "invalid scan request arguments", err.Error())
	}
	if err := scanReq.Validate(); err != nil {
		return errResp(req.ID, CodeInvalidScanInput, err.Error(), "")
	}

	descriptor := a.Describe()
	timeout := time.Duration(descriptor.Execution.DefaultTimeoutSeconds) * time.Second
	if scanReq.Limits.TimeoutSeconds > 0 {
		requested := time.Duration(scanReq.Limits.TimeoutSeconds) * time.Second
		if requested < timeout {
			timeout = requested
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	findings, diag, execErr := adapter.Run(callCtx, a, scanReq, adapter.ExecutionContext{Deadline: time.Now().Add(timeout)}, s.sink)
	elapsed := time.Since(start).Seconds()

	resp := ScanResponse{
		ToolName:             descriptor.ToolID,
		ExecutionTimeSeconds: elapsed,
		Diagnostics:          diagnosticsToWire(diag),
	}
	if execErr != nil {
		resp.Success = false
		resp.Error = &ScanResponseError{Kind: scanErrorKind(execErr), Message: execErr.Error()}
		payload, _ := json.Marshal(resp)
		content := ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: string(payload)}}}
		return withScanErrorCode(req.ID, execErr, content)
	}

	resp.Success = true
	resp.Findings = marshalFindings(findings)
	payload, err := json.Marshal(resp)
	if err != nil {
		return errResp(req.ID, CodeInternalError, "failed to marshal scan response", err.Error())
	}
	return okResp(req.ID, ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: string(payload)}}})
}

func diagnosticsToWire(d adapter.Diagnostics) ScanDiagnostics {
	return ScanDiagnostics{CommandHash: d.CommandHash, ExitCode: d.ExitCode, StderrTail: d.StderrTail}
}

// scanErrorKind names the taxonomy member execErr belongs to, mirroring
// withScanErrorCode's switch so the wire-level error.kind and the
// JSON-RPC error.code always agree.
func scanErrorKind(err error) string {
	switch err.(type) {
	case *orcherrors.Timeout:
		return "timeout"
	case *orcherrors.ParseError:
		return "parse_error"
	case *orcherrors.InvalidInput:
		return "invalid_input"
	case *orcherrors.ToolMissing:
		return "tool_missing"
	default:
		return "execution_failed"
	}
}

func withScanErrorCode(id json.RawMessage, err error, content ToolsCallResult) Response {
	code := CodeExecutionFailed
	switch err.(type) {
	case *orcherrors.Timeout:
		code = CodeTimeout
	case *orcherrors.ParseError:
		code = CodeParseError
	case *orcherrors.InvalidInput:
		code = CodeInvalidScanInput
	case *orcherrors.ToolMissing:
		code = CodeToolMissing
	}
	// The scan response still travels as structured content per spec.md
	// §4.2, but the envelope also carries the JSON-RPC error so callers
	// that only inspect top-level errors still see the right taxonomy.
	raw, _ := json.Marshal(content)
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &ErrorObject{
			Code:    code,
			Message: err.Error(),
			Data:    string(raw),
		},
	}
}

func marshalFindings(findings []finding.Finding) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(findings))
	for _, f := range findings {
		raw, err := json.Marshal(f)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (s *Session) handleResourcesList(req Request) Response {
	if s.resource == nil {
		return okResp(req.ID, ResourcesListResult{Resources: []ResourceDescription{}})
	}
	return okResp(req.ID, ResourcesListResult{Resources: s.resource.ListResources()})
}

func (s *Session) handleResourcesRead(req Request) Response {
	var params ResourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResp(req.ID, CodeInvalidParams, "invalid resources/read params", err.Error())
	}
	if s.resource == nil {
		return errResp(req.ID, CodeInvalidParams, "no resource reader configured", "")
	}
	content, err := s.resource.ReadResource(params.URI)
	if err != nil {
		return errResp(req.ID, CodeInvalidParams, err.Error(), "")
	}
	return okResp(req.ID, ResourcesReadResult{Contents: []ResourceContent{content}})
}
