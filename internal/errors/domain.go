package errors

import (
	"fmt"
	"net/http"
)

// Sentinel errors shared across the sync layer.
var (
	// ErrMethodNotAllowed marks an HTTP 405 response. The gateway treats it as a
	// signal to retry a PATCH as PUT rather than as a failure.
	ErrMethodNotAllowed = NewStd("method not allowed")

	// ErrSyncInProgress is returned to user-initiated actions that need the sync
	// token while a pass is running.
	ErrSyncInProgress = NewStd("sync pass already in progress")

	// ErrNoIdentity is returned when an action requires a user identity and none is available.
	ErrNoIdentity = NewStd("no user identity available")
)

// StorageError reports a failure of the persistent storage medium.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrorCategory implements CategorizedError.
func (e *StorageError) ErrorCategory() ErrorCategory { return CategoryStorage }

// FileMissingError reports that a catch image no longer exists on disk.
type FileMissingError struct {
	Path string
}

func (e *FileMissingError) Error() string {
	return "image file missing: " + e.Path
}

// ErrorCategory implements CategorizedError.
func (e *FileMissingError) ErrorCategory() ErrorCategory { return CategoryFileMissing }

// NetworkError reports a transport-level failure talking to the backend.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrorCategory implements CategorizedError.
func (e *NetworkError) ErrorCategory() ErrorCategory { return CategoryNetwork }

// HTTPStatusError reports a non-2xx response from the backend.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Detail     string
}

func (e *HTTPStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

// Is lets errors.Is(err, ErrMethodNotAllowed) match a 405 response.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrMethodNotAllowed && e.StatusCode == http.StatusMethodNotAllowed
}

// ErrorCategory implements CategorizedError.
func (e *HTTPStatusError) ErrorCategory() ErrorCategory {
	if e.StatusCode == http.StatusMethodNotAllowed {
		return CategoryMethodNotAllowed
	}
	if e.StatusCode == http.StatusNotFound {
		return CategoryNotFound
	}
	return CategoryHTTPStatus
}

// IsMethodNotAllowed reports whether err carries an HTTP 405 response.
func IsMethodNotAllowed(err error) bool {
	return Is(err, ErrMethodNotAllowed)
}

// StatusCode extracts the HTTP status code from err, or 0 when err carries none.
func StatusCode(err error) int {
	var statusErr *HTTPStatusError
	if As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
