// Package errors provides the coded error type shared by the tessera service.
//
// Each error carries a machine-readable code, an HTTP status for the API
// layer, and optionally an underlying cause. Errors compare by code through
// errors.Is, so wrapped instances still match their sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Predefined service errors.
var (
	// ErrInvalidRequest indicates the request parameters are malformed.
	ErrInvalidRequest = &Error{
		Code:    "INVALID_REQUEST",
		HTTP:    http.StatusBadRequest,
		Message: "invalid request parameters",
	}

	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = &Error{
		Code:    "COLLECTION_NOT_FOUND",
		HTTP:    http.StatusNotFound,
		Message: "collection not found",
	}

	// ErrCollectionExists indicates a collection with the name already exists.
	ErrCollectionExists = &Error{
		Code:    "COLLECTION_EXISTS",
		HTTP:    http.StatusConflict,
		Message: "collection already exists",
	}

	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = &Error{
		Code:    "DOCUMENT_NOT_FOUND",
		HTTP:    http.StatusNotFound,
		Message: "document not found",
	}

	// ErrSessionNotFound indicates the chat session does not exist.
	ErrSessionNotFound = &Error{
		Code:    "SESSION_NOT_FOUND",
		HTTP:    http.StatusNotFound,
		Message: "chat session not found",
	}

	// ErrUnsupportedMedia indicates the document media type cannot be parsed.
	ErrUnsupportedMedia = &Error{
		Code:    "UNSUPPORTED_MEDIA",
		HTTP:    http.StatusUnsupportedMediaType,
		Message: "unsupported document media type",
	}

	// ErrDatabase indicates a relational storage failure.
	ErrDatabase = &Error{
		Code:    "DATABASE_ERROR",
		HTTP:    http.StatusInternalServerError,
		Message: "database operation failed",
	}

	// ErrIndexUnavailable indicates the vector or sparse index failed.
	ErrIndexUnavailable = &Error{
		Code:    "INDEX_UNAVAILABLE",
		HTTP:    http.StatusServiceUnavailable,
		Message: "retrieval index unavailable",
	}

	// ErrGenerationFailed indicates the language model call failed.
	ErrGenerationFailed = &Error{
		Code:    "GENERATION_FAILED",
		HTTP:    http.StatusBadGateway,
		Message: "answer generation failed",
	}

	// ErrIngestFailed indicates document processing failed.
	ErrIngestFailed = &Error{
		Code:    "INGEST_FAILED",
		HTTP:    http.StatusInternalServerError,
		Message: "document ingestion failed",
	}

	// ErrInternal is the catch-all for uncategorized failures.
	ErrInternal = &Error{
		Code:    "INTERNAL",
		HTTP:    http.StatusInternalServerError,
		Message: "internal server error",
	}
)

// Error represents a service error with a code, HTTP status, and message.
type Error struct {
	// Code is a machine-readable error code (e.g., "COLLECTION_NOT_FOUND").
	Code string

	// HTTP is the status code the API layer responds with.
	HTTP int

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapped instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with an updated message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: fmt.Sprintf(format, args...),
		Cause:   e.Cause,
	}
}

// WithCause returns a copy carrying an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: e.Message,
		Cause:   cause,
	}
}

// FromError extracts an *Error from an error chain.
func FromError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status for an error, defaulting to 500.
func HTTPStatus(err error) int {
	if coded, ok := FromError(err); ok && coded.HTTP != 0 {
		return coded.HTTP
	}
	return http.StatusInternalServerError
}
