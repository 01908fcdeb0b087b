// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of pool or storage error.
type ErrorCode string

const (
	// ErrorCodeNotFound indicates a server record or client was not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeReadOnly indicates a mutation was attempted on a file-based record.
	ErrorCodeReadOnly ErrorCode = "READ_ONLY"
	// ErrorCodeValidation indicates a malformed server configuration.
	ErrorCodeValidation ErrorCode = "VALIDATION"
	// ErrorCodeConnectFailed indicates a client handshake or spawn failure.
	ErrorCodeConnectFailed ErrorCode = "CONNECT_FAILED"
	// ErrorCodeStorage indicates a storage backend failure.
	ErrorCodeStorage ErrorCode = "STORAGE"
)

// Error is the package error type. Policy violations (deleting a read-only
// record) carry ErrorCodeReadOnly and must reach the API boundary; connection
// and storage failures are logged at their origin and degrade gracefully.
type Error struct {
	// Code is the error category.
	Code ErrorCode
	// Message is the primary error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches an underlying cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// ErrReadOnlyServer creates the policy error for mutating a file-based record.
func ErrReadOnlyServer(name string) *Error {
	return NewError(ErrorCodeReadOnly,
		fmt.Sprintf("Cannot delete default MCP server %q. Default servers are read-only.", name))
}

// ErrServerNotFound creates an error for an unknown server id.
func ErrServerNotFound(id string) *Error {
	return NewError(ErrorCodeNotFound, fmt.Sprintf("MCP server %q not found", id))
}

// ErrConnectFailed wraps a connection failure for a named server.
func ErrConnectFailed(name string, cause error) *Error {
	return NewError(ErrorCodeConnectFailed,
		fmt.Sprintf("failed to connect MCP server %q", name)).WithCause(cause)
}

// ErrStorage wraps a storage backend failure.
func ErrStorage(op string, cause error) *Error {
	return NewError(ErrorCodeStorage, fmt.Sprintf("storage %s failed", op)).WithCause(cause)
}

// CodeOf extracts the ErrorCode from an error chain, or "" if the chain does
// not contain an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
