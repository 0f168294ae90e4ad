// Package domain provides the canonical error kinds and request types shared
// by the upstream client, the adapter and the HTTP frontdoor.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failure categories the gateway distinguishes.
type ErrorKind string

const (
	// ErrorKindUnauthorized indicates a missing or incorrect bearer credential.
	ErrorKindUnauthorized ErrorKind = "unauthorized"

	// ErrorKindInvalidInput indicates an absent prompt or message content.
	ErrorKindInvalidInput ErrorKind = "invalid_input"

	// ErrorKindUpstreamTransport indicates an upstream call could not complete.
	ErrorKindUpstreamTransport ErrorKind = "upstream_transport"

	// ErrorKindUpstreamMalformedResponse indicates the upstream body was not JSON.
	ErrorKindUpstreamMalformedResponse ErrorKind = "upstream_malformed_response"

	// ErrorKindUpstreamHTTP indicates a non-success upstream HTTP status.
	ErrorKindUpstreamHTTP ErrorKind = "upstream_http_error"

	// ErrorKindUpstreamLogical indicates a parsed envelope that reports failure.
	ErrorKindUpstreamLogical ErrorKind = "upstream_logical_error"

	// ErrorKindNotFound indicates an unmatched route.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindMethodNotAllowed indicates a known route hit with the wrong method.
	ErrorKindMethodNotAllowed ErrorKind = "method_not_allowed"

	// ErrorKindInternal covers anything that was not classified.
	ErrorKindInternal ErrorKind = "internal"
)

// ErrorCode is the machine readable code placed in the error body.
type ErrorCode string

const (
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeGenerationFailed ErrorCode = "generation_failed"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed ErrorCode = "method_not_allowed"
	ErrorCodeInternal         ErrorCode = "internal_error"
)

// kindMapping is the explicit kind -> (status, code) table used at the handler boundary.
var kindMapping = map[ErrorKind]struct {
	status int
	code   ErrorCode
}{
	ErrorKindUnauthorized:              {http.StatusUnauthorized, ErrorCodeUnauthorized},
	ErrorKindInvalidInput:              {http.StatusInternalServerError, ErrorCodeGenerationFailed},
	ErrorKindUpstreamTransport:         {http.StatusInternalServerError, ErrorCodeGenerationFailed},
	ErrorKindUpstreamMalformedResponse: {http.StatusInternalServerError, ErrorCodeGenerationFailed},
	ErrorKindUpstreamHTTP:              {http.StatusInternalServerError, ErrorCodeGenerationFailed},
	ErrorKindUpstreamLogical:           {http.StatusInternalServerError, ErrorCodeGenerationFailed},
	ErrorKindNotFound:                  {http.StatusNotFound, ErrorCodeNotFound},
	ErrorKindMethodNotAllowed:          {http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed},
	ErrorKindInternal:                  {http.StatusInternalServerError, ErrorCodeInternal},
}

// APIError is a classified failure. Message is user visible and is copied
// verbatim into the error body.
type APIError struct {
	// Kind is the category of error
	Kind ErrorKind

	// Message is the human-readable error message
	Message string

	// UpstreamStatus is the HTTP status returned by the upstream service, if any
	UpstreamStatus int

	// UpstreamBody is the parsed (or raw) upstream body, if any
	UpstreamBody []byte

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code surfaced to the caller for this error.
func (e *APIError) HTTPStatusCode() int {
	if m, ok := kindMapping[e.Kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Code returns the error body code for this error.
func (e *APIError) Code() ErrorCode {
	if m, ok := kindMapping[e.Kind]; ok {
		return m.code
	}
	return ErrorCodeInternal
}

// NewAPIError creates a new API error.
func NewAPIError(kind ErrorKind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

// WithCause attaches the underlying error.
func (e *APIError) WithCause(err error) *APIError {
	e.Err = err
	return e
}

// WithUpstream records the upstream status and body.
func (e *APIError) WithUpstream(status int, body []byte) *APIError {
	e.UpstreamStatus = status
	e.UpstreamBody = body
	return e
}

// Convenience constructors for common errors

// ErrUnauthorized creates an unauthorized error.
func ErrUnauthorized(message string) *APIError {
	return NewAPIError(ErrorKindUnauthorized, message)
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) *APIError {
	return NewAPIError(ErrorKindInvalidInput, message)
}

// ErrUpstreamTransport creates an upstream transport error.
func ErrUpstreamTransport(message string, cause error) *APIError {
	return NewAPIError(ErrorKindUpstreamTransport, message).WithCause(cause)
}

// ErrUpstreamMalformed creates an error for a non-JSON upstream body.
func ErrUpstreamMalformed(message string) *APIError {
	return NewAPIError(ErrorKindUpstreamMalformedResponse, message)
}

// ErrUpstreamHTTP creates an error for a non-success upstream status.
func ErrUpstreamHTTP(status int, body []byte) *APIError {
	return NewAPIError(ErrorKindUpstreamHTTP, fmt.Sprintf("Upstream Error (%d): %s", status, body)).
		WithUpstream(status, body)
}

// ErrUpstreamLogical creates an error for an envelope that reports failure.
func ErrUpstreamLogical(message string) *APIError {
	return NewAPIError(ErrorKindUpstreamLogical, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorKindNotFound, message)
}

// ErrMethodNotAllowed creates a method not allowed error.
func ErrMethodNotAllowed(message string) *APIError {
	return NewAPIError(ErrorKindMethodNotAllowed, message)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *APIError {
	return NewAPIError(ErrorKindInternal, message)
}

// AsAPIError converts any error to an *APIError. Errors that are not already
// classified become internal errors carrying the original message.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal(err.Error()).WithCause(err)
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
