package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThreadNotFound is matched (errors.Is) by an *APIError reporting that the
// target forum thread no longer exists.
var ErrThreadNotFound = errors.New("message thread not found")

// ErrMissingToken is returned by New when no bot token is configured.
var ErrMissingToken = errors.New("telegram: bot token is empty")

// APIError is a non-successful Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is the provider's requested delay in seconds (429 only).
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Is lets callers test errors.Is(err, ErrThreadNotFound).
func (e *APIError) Is(target error) bool {
	if target != ErrThreadNotFound {
		return false
	}
	d := strings.ToLower(e.Description)
	return strings.Contains(d, "thread not found") || strings.Contains(d, "topic_deleted")
}

// IsTooManyRequests reports a 429 reply.
func (e *APIError) IsTooManyRequests() bool { return e.Code == 429 }

// Code extracts the Bot API error code, or 0 for transport failures.
func Code(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}
