package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// HTTPStatusError is a terminal non-2xx response. It is never retried.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// HTTPStatus returns the response status code.
func (e *HTTPStatusError) HTTPStatus() int {
	return e.StatusCode
}

// errorMessageKeys are consulted in order when a JSON error body is returned.
var errorMessageKeys = []string{"message", "error", "error.message"}

// newHTTPStatusError extracts the most specific message available: a JSON
// message field, then the raw text, then nothing (Error falls back to
// "HTTP <status>").
func newHTTPStatusError(status int, body []byte, truncated bool) *HTTPStatusError {
	msg := ""
	if len(body) > 0 && !truncated && gjson.ValidBytes(body) {
		for _, key := range errorMessageKeys {
			v := gjson.GetBytes(body, key)
			if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				msg = strings.TrimSpace(v.Str)
				break
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if truncated && msg != "" {
			msg += "...(truncated)"
		}
	}
	return &HTTPStatusError{StatusCode: status, Message: msg, Body: body}
}

// TransportError is a failure before a complete response was received:
// connection errors, attempt timeouts, body read failures.
type TransportError struct {
	Op      string
	URL     string
	Err     error
	timeout bool
}

func (e *TransportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("%s %s: request timed out: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt ran out of time.
func (e *TransportError) Timeout() bool {
	return e.timeout
}

// Connectivity reports whether the failure was a connection-level error
// rather than a timeout or a cancellation by the caller.
func (e *TransportError) Connectivity() bool {
	return !e.timeout && !errors.Is(e.Err, context.Canceled)
}

// IsStatus reports whether err is an HTTPStatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == status
}

// StatusText returns the canonical text for a status code, or "" if unknown.
func StatusText(status int) string {
	return http.StatusText(status)
}
