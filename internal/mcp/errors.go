// Package mcp implements the protocol server (§4.H): the MCP tool registry,
// response-size limiting, and stdio/HTTP transports that bridge AI clients
// to the search and research services.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// JSON-RPC and MCP-specific error codes, per §4.H and the JSON-RPC 2.0 spec.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// ErrCodeTimeout indicates a request-scoped deadline (e.g. the 12-second
	// query-vector-generation bound) was exceeded.
	ErrCodeTimeout = -32001
	// ErrCodeEmbeddingUnavailable indicates embedding generation failed or
	// no embedder is configured.
	ErrCodeEmbeddingUnavailable = -32002
	// ErrCodeResourceNotFound indicates the requested resource URI is unknown.
	ErrCodeResourceNotFound = -32004
)

var (
	// ErrToolNotFound indicates the requested tool is not registered, either
	// because it doesn't exist or because its required capability (embedder,
	// completer) isn't configured.
	ErrToolNotFound = errors.New("tool not found")

	// ErrResourceNotFound indicates the requested resource URI is unknown.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError is a JSON-RPC-shaped error with a code and message, the form the
// protocol server returns to callers for any failure.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into an MCPError, mapping ChunkHound's
// CHError taxonomy (internal/errors) onto JSON-RPC-ish codes the client can
// branch on — in particular, a retryable CHError (an embedding timeout, an
// LLM timeout) is surfaced distinctly from a hard failure.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeResourceNotFound, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request canceled"}
	}

	var ce *cherrors.CHError
	if errors.As(err, &ce) {
		return mapCHError(ce)
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}

// mapCHError maps a CHError's Kind to an MCP error code.
func mapCHError(ce *cherrors.CHError) *MCPError {
	code := ErrCodeInternalError
	switch cherrors.GetKind(ce) {
	case cherrors.KindConfig:
		code = ErrCodeInvalidParams
	case cherrors.KindEmbed:
		code = ErrCodeEmbeddingUnavailable
	case cherrors.KindLLMTimeout:
		code = ErrCodeTimeout
	case cherrors.KindProtocol:
		code = ErrCodeInvalidRequest
	}
	return &MCPError{Code: code, Message: ce.Message}
}

// NewInvalidParamsError builds an invalid-params error with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError builds a method-not-found error for tool name.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// NewResourceNotFoundError builds a resource-not-found error for uri.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeResourceNotFound, Message: fmt.Sprintf("resource %q not found", uri)}
}
