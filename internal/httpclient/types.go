package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
var ErrResponseTooLarge = fmt.Errorf("response exceeds maximum size of %d bytes", MaxResponseSize)

// remoteMessagePaths are the JSON fields remote APIs use for error text.
var remoteMessagePaths = []string{"mensagem", "message", "error.message", "error", "erro", "detail"}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
	Body       []byte
}

// Error returns the error message
func (e *HTTPError) Error() string {
	if msg := e.RemoteMessage(); msg != "" {
		return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, msg)
	}
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// RemoteMessage extracts the error text from a JSON error body, or
// returns "" when none is found.
func (e *HTTPError) RemoteMessage() string {
	return RemoteMessage(e.Body)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string, body []byte) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
		Body:       body,
	}
}

// RemoteMessage looks up the first string error field in a JSON payload.
func RemoteMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range remoteMessagePaths {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String {
			if msg := strings.TrimSpace(r.String()); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// IsRetryable reports whether err is worth retrying: transport failures,
// timeouts, 429 and 5xx responses. Cancellation of the caller's context is
// never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
