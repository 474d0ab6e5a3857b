// Package rpc implements the MCP (Model Context Protocol) surface over
// JSON-RPC 2.0 / HTTP, exposing a loaded dataset as tools and resources
// to an LLM client. Grounded directly on original_source/src/mcp.rs,
// translated from axum/tokio to net/http + gorilla/mux + gorilla/handlers
// (the corpus's HTTP-routing idiom — see q2pdxu-real-time-collaborative-
// task-board/repository_after/server/main.go) and from async handlers to
// plain goroutine-per-request with CPU-bound tool calls submitted to a
// bounded worker pool instead of spawn_blocking.
package rpc

import json "github.com/goccy/go-json"

// jsonRPCRequest is the JSON-RPC 2.0 request envelope.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonRPCResponse is the JSON-RPC 2.0 response envelope. Exactly one of
// Result or Error is populated.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

func success(id json.RawMessage, result any) jsonRPCResponse {
	return jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func failure(id json.RawMessage, code int, message string) jsonRPCResponse {
	return jsonRPCResponse{JSONRPC: "2.0", ID: id, Error: &jsonRPCError{Code: code, Message: message}}
}

// serverCapabilities is announced during initialize.
type serverCapabilities struct {
	Tools     capabilityFlag `json:"tools"`
	Resources capabilityFlag `json:"resources"`
}

type capabilityFlag struct {
	ListChanged bool `json:"listChanged"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolDescriptor is one entry in a tools/list response.
type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// resourceDescriptor is one entry in a resources/list response.
type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// contentBlock is one unit of a tool-call result.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const protocolVersion = "2024-11-05"
const serverVersion = "0.1.0"
