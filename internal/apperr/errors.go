// Package apperr is the shared error taxonomy for the streaming core and
// its ambient surface. Every error that crosses a component boundary is an
// *AppError carrying a Kind, an HTTP status, and whether it is retryable;
// handlers at the HTTP boundary switch on Kind rather than on message text.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind is the category of an AppError.
type Kind string

const (
	// KindTransport is a network or TLS failure talking to any upstream.
	KindTransport Kind = "transport"
	// KindParse is a JSON shape mismatch from an upstream response.
	KindParse Kind = "parse"
	// KindTokenExpired is only ever observed inside the upstream client;
	// it triggers exactly one token refresh and one retry.
	KindTokenExpired Kind = "token_expired"
	// KindUpstreamError is a non-empty, non-expiry error object returned
	// by an upstream call.
	KindUpstreamError Kind = "upstream_error"
	// KindBadRequest is a caller-supplied id that isn't a parseable integer.
	KindBadRequest Kind = "bad_request"
	// KindCipherFailure is a Blowfish init or decrypt failure on a segment.
	KindCipherFailure Kind = "cipher_failure"
	// KindObjectStorePut is a background cache-upload failure.
	KindObjectStorePut Kind = "object_store_put_failure"
	// KindListenRecord is a background listen-recording failure.
	KindListenRecord Kind = "listen_record_failure"
)

// AppError is the concrete error type carried across component boundaries.
type AppError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error

	// OldToken is set only on KindTokenExpired: the api_token value the
	// caller observed when the expiry was detected.
	OldToken string
	// Payload is set only on KindUpstreamError: the upstream's raw error
	// object, preserved for logging.
	Payload any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewTransport wraps a network/TLS failure.
func NewTransport(message string, cause error) *AppError {
	return &AppError{Kind: KindTransport, Message: message, StatusCode: http.StatusInternalServerError, Retryable: false, Cause: cause}
}

// NewParse wraps a JSON shape mismatch.
func NewParse(message string, cause error) *AppError {
	return &AppError{Kind: KindParse, Message: message, StatusCode: http.StatusInternalServerError, Retryable: false, Cause: cause}
}

// NewTokenExpired records the observed stale token value that triggered
// the expiry sentinel.
func NewTokenExpired(oldToken string) *AppError {
	return &AppError{
		Kind:       KindTokenExpired,
		Message:    "upstream reported VALID_TOKEN_REQUIRED",
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		OldToken:   oldToken,
	}
}

// NewUpstreamError preserves the upstream's raw error payload for logs.
func NewUpstreamError(payload any) *AppError {
	return &AppError{
		Kind:       KindUpstreamError,
		Message:    "upstream returned an error",
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Payload:    payload,
	}
}

// NewBadRequest wraps a caller input validation failure.
func NewBadRequest(message string) *AppError {
	return &AppError{Kind: KindBadRequest, Message: message, StatusCode: http.StatusBadRequest, Retryable: false}
}

// NewCipherFailure wraps a Blowfish init/decrypt failure mid-stream.
func NewCipherFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindCipherFailure, Message: message, StatusCode: http.StatusInternalServerError, Retryable: false, Cause: cause}
}

// NewObjectStorePutFailure wraps a background cache-upload failure.
func NewObjectStorePutFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindObjectStorePut, Message: message, StatusCode: http.StatusInternalServerError, Retryable: false, Cause: cause}
}

// NewListenRecordFailure wraps a background listen-recording failure.
func NewListenRecordFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindListenRecord, Message: message, StatusCode: http.StatusInternalServerError, Retryable: false, Cause: cause}
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return false
	}
	return ae.Kind == kind
}

// StatusCode returns the HTTP status to surface for err, defaulting to 500
// for anything that isn't an *AppError.
func StatusCode(err error) int {
	if ae, ok := err.(*AppError); ok {
		return ae.StatusCode
	}
	return http.StatusInternalServerError
}
