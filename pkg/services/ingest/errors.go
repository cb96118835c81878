package ingest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStorage wraps failures to persist a counted clip.
var ErrStorage = errors.New("failed to persist record")

// ValidationError rejects an upload before any external call is made.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func BadRequest(format string, args ...any) error {
	return &ValidationError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func TooLarge(limit int64) error {
	size := fmt.Sprintf("%d bytes", limit)
	if limit >= 1<<20 && limit%(1<<20) == 0 {
		size = fmt.Sprintf("%d MB", limit>>20)
	}
	return &ValidationError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: "file exceeds the " + size + " limit",
	}
}

func unsupported(format string, args ...any) error {
	return &ValidationError{Status: http.StatusUnsupportedMediaType, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedContentType is returned for request bodies that are neither
// multipart forms nor JSON.
func UnsupportedContentType(contentType string) error {
	return unsupported("unsupported content type %q: use multipart/form-data or application/json", contentType)
}
