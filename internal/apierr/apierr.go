// Package apierr defines the structured error taxonomy surfaced across the
// orchestrator (§7). Each Kind carries a stable HTTP status and a retry
// classification so the Action Runner, Workflow Executor, and HTTP surface
// can share one vocabulary for "what happened and should we try again".
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error-taxonomy discriminator from §7.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindNotFound       Kind = "NotFoundError"
	KindConflict       Kind = "ConflictError"
	KindConfiguration  Kind = "ConfigurationError"
	KindDependency     Kind = "DependencyError"
	KindContainer      Kind = "ContainerError"
	KindTimeout        Kind = "TimeoutError"
	KindCancelled      Kind = "CancelledError"
)

// statusByKind maps each Kind to the HTTP status it surfaces as (§7).
var statusByKind = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindAuthentication: http.StatusUnauthorized,
	KindAuthorization:  http.StatusForbidden,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindConfiguration:  http.StatusInternalServerError,
	KindDependency:     http.StatusBadGateway,
	KindContainer:      http.StatusInternalServerError,
	KindTimeout:        http.StatusGatewayTimeout,
	KindCancelled:      http.StatusGone,
}

// retryableByKind records which kinds the Action Runner / Executor may retry
// by default. ContainerError and TimeoutError are retryable only up to the
// component's RetryPolicy limits, evaluated by the caller, not here.
var retryableByKind = map[Kind]bool{
	KindDependency: true,
	KindContainer:  true,
	KindTimeout:    true,
}

// Error is a structured, kind-tagged failure. It never embeds a stack
// trace — only a message — matching §7's "never a full stack trace"
// propagation rule for NODE_FAILED trace events.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries structured context (nodeId, componentId, exitCode, ...)
	// consumed by callers that need it (e.g. UnknownComponent{nodeId,
	// componentId}, ContainerError{exitCode, stderr}).
	Fields map[string]any
	cause  error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithField attaches a structured field and returns the same Error for
// chaining, e.g. apierr.New(...).WithField("nodeId", id).
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap supports errors.Is/As over the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code this error's Kind surfaces as.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether errors of this Kind are retryable by default
// policy (before consulting a component's NonRetryableErrorKinds).
func (e *Error) Retryable() bool {
	return retryableByKind[e.Kind]
}

// As extracts an *Error from err, mirroring the standard errors.As pattern
// used throughout the codebase for structured error inspection.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, or
// KindDependency as a conservative default for opaque errors surfaced from
// external collaborators.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindDependency
}
