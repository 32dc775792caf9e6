package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// PreconditionError indicates missing configuration required by the
	// operation (e.g. no API key stored for vision calls)
	PreconditionError struct {
		Message string
	}

	// BusyError indicates an operation was rejected because a previous one
	// is still in flight
	BusyError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *PreconditionError) Error() string { return e.Message }
func (e *BusyError) Error() string         { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *PreconditionError) StatusCode() int { return http.StatusPreconditionFailed }
func (e *BusyError) StatusCode() int         { return http.StatusConflict }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// ErrNoAPIKey blocks any vision call until a key is stored in preferences
	ErrNoAPIKey = errors.New("api key not configured")

	// ErrBusy rejects a send while a previous vision call is outstanding
	ErrBusy = errors.New("a request is already in flight")

	// ErrNoActiveSession rejects chat operations while the screen is in its
	// initial state (no image captured yet)
	ErrNoActiveSession = errors.New("no active session")
)

// Is implementations let errors.Is() match typed errors against sentinels.
func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *PreconditionError) Is(target error) bool { return target == ErrNoAPIKey }
func (e *BusyError) Is(target error) bool         { return target == ErrBusy }
