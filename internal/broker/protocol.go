// Package broker exposes the tool registry and adapter execution over a
// JSON-RPC 2.0 line protocol on a stdio-style duplex channel (spec.md
// §4.2 "Broker"), grounded on the request/response envelope shape
// scan-io's plugin RPC layer uses (shared/common.go's handshake +
// dispense pattern) but re-expressed as line-delimited JSON-RPC rather
// than net/rpc, matching spec.md §6's wire contract exactly.
package broker

import "encoding/json"

// Request is one line of the wire protocol. Notifications omit ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the matching reply: exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a JSON-RPC error payload.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Extension error codes, spec.md §6.
const (
	CodeToolMissing      = -32001
	CodeNotInitialized   = -32002
	CodeShuttingDown     = -32003
	CodeBusy             = -32004
	CodeInvalidScanInput = -32010
	CodeExecutionFailed  = -32011
	CodeTimeout          = -32012
	CodeParseError       = -32013

	// CodeParseErrorWire is the standard JSON-RPC "parse error" for
	// malformed request lines, distinct from the domain ParseError above.
	CodeParseErrorWire = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

func errResp(id json.RawMessage, code int, message string, data string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}

func okResp(id json.RawMessage, result interface{}) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return errResp(id, CodeInternalError, "failed to marshal result", err.Error())
	}
	return Response{JSONRPC: "2.0", ID: id, Result: raw}
}

// InitializeParams is the initialize request payload.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// ClientInfo identifies the connecting agent runtime.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ServerInfo   ClientInfo             `json:"serverInfo"`
	Capabilities map[string]interface{} `json:"capabilities"`
}

// ToolsListResult is the tools/list response payload.
type ToolsListResult struct {
	Tools []ToolDescription `json:"tools"`
}

// ToolDescription is one entry of a tools/list response.
type ToolDescription struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
	Category    string      `json:"category"`
	Available   bool        `json:"available"`
	Capability  interface{} `json:"capability"`
}

// ToolsCallParams is the tools/call request payload.
type ToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentBlock is one entry of a tools/call result's content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolsCallResult is the tools/call response payload.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content"`
}

// ResourcesListResult is the resources/list response payload.
type ResourcesListResult struct {
	Resources []ResourceDescription `json:"resources"`
}

// ResourceDescription is one entry of a resources/list response.
type ResourceDescription struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ResourcesReadParams is the resources/read request payload.
type ResourcesReadParams struct {
	URI string `json:"uri"`
}

// ResourceContent is one entry of a resources/read result's contents array.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ResourcesReadResult is the resources/read response payload.
type ResourcesReadResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ScanResponse is the JSON payload embedded as text in a tools/call
// content block, matching spec.md §6's scan-response schema exactly:
// {success, tool_name, execution_time_seconds, findings, diagnostics,
// error?}.
type ScanResponse struct {
	Success              bool               `json:"success"`
	ToolName             string             `json:"tool_name"`
	ExecutionTimeSeconds float64            `json:"execution_time_seconds"`
	Findings             []json.RawMessage  `json:"findings"`
	Diagnostics          ScanDiagnostics    `json:"diagnostics"`
	Error                *ScanResponseError `json:"error,omitempty"`
}

// ScanDiagnostics is the diagnostics object of spec.md §6's scan
// response, carrying the same facts adapter.Diagnostics captures
// internally (spec.md §4.1) out over the wire.
type ScanDiagnostics struct {
	CommandHash string `json:"command_hash"`
	ExitCode    int    `json:"exit_code"`
	StderrTail  string `json:"stderr_tail"`
}

// ScanResponseError is the optional error object of spec.md §6's scan
// response.
type ScanResponseError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
