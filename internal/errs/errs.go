// Package errs defines the typed error vocabulary shared by the gateway
// and tenant workers, and the policy for mapping each kind to an HTTP
// status code.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for routing, logging and HTTP status mapping.
type Kind string

const (
	KindTenantRequired   Kind = "tenant_required"
	KindUnknownTenant    Kind = "unknown_tenant"
	KindCrossTenant      Kind = "cross_tenant_access"
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindWorkerUnavailable Kind = "worker_unavailable"
	KindWorkerTimeout    Kind = "worker_timeout"
	KindBufferOverloaded Kind = "buffer_overloaded"
	KindUnknownCommand   Kind = "unknown_command"
	KindValidationFailed Kind = "validation_failed"
	KindEncryptionFailed Kind = "encryption_failed"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

// Error is the common error type returned by gateway components. It
// carries enough structure for AuthMiddleware/MetricsMiddleware and the
// HTTP layer to react without re-parsing a message string.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Cause         error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithCorrelationID returns a shallow copy of e carrying id, so the
// caller doesn't need to mutate an error that may be shared.
func (e *Error) WithCorrelationID(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// HTTPStatus maps a Kind to the HTTP status code the gateway's error
// handler should return.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindTenantRequired, KindValidationFailed:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindCrossTenant:
		return http.StatusForbidden
	case KindUnknownTenant, KindUnknownCommand, KindNotFound:
		return http.StatusNotFound
	case KindWorkerTimeout:
		return http.StatusGatewayTimeout
	case KindWorkerUnavailable, KindBufferOverloaded:
		return http.StatusServiceUnavailable
	case KindEncryptionFailed, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
