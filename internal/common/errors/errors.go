// Package errors provides the error types shared by the store, service,
// and room layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a store failure. Callers branch on the kind, never on
// the message text.
type Kind string

const (
	KindNotFound  Kind = "notFound"
	KindConflict  Kind = "conflict"
	KindTransient Kind = "transient"
	KindFatal     Kind = "fatal"
)

// StoreError is the failure type returned by every Task Store operation.
// Transient errors may be retried by the caller; the other kinds are final.
type StoreError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to the status the ingress layer responds with.
func (e *StoreError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *StoreError {
	return &StoreError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s with id '%s' not found", resource, id),
	}
}

// Conflict creates a conflict error.
func Conflict(message string) *StoreError {
	return &StoreError{Kind: KindConflict, Message: message}
}

// Transient creates a retryable error wrapping the underlying failure.
func Transient(message string, err error) *StoreError {
	return &StoreError{Kind: KindTransient, Message: message, Err: err}
}

// Fatal creates a non-retryable error wrapping the underlying failure.
func Fatal(message string, err error) *StoreError {
	return &StoreError{Kind: KindFatal, Message: message, Err: err}
}

// IsNotFound reports whether err is a StoreError of kind notFound.
func IsNotFound(err error) bool {
	return isKind(err, KindNotFound)
}

// IsConflict reports whether err is a StoreError of kind conflict.
func IsConflict(err error) bool {
	return isKind(err, KindConflict)
}

// IsTransient reports whether err is a StoreError of kind transient.
func IsTransient(err error) bool {
	return isKind(err, KindTransient)
}

// IsFatal reports whether err is a StoreError of kind fatal.
func IsFatal(err error) bool {
	return isKind(err, KindFatal)
}

func isKind(err error, kind Kind) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
