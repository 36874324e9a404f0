package client

import (
	"fmt"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
)

// APIError is a non-2xx reply from a twincheck server.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"error,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("api error: status=%d", e.StatusCode)
	if e.Code != "" {
		s += " code=" + e.Code
	}
	if e.RequestID != "" {
		s += " request_id=" + e.RequestID
	}
	if e.Message != "" {
		s += " message=" + e.Message
	}
	return s
}

// Unwrap lets callers test a remote "no matches" reply with errors.Is.
func (e *APIError) Unwrap() error {
	if e.Code == "no_matches" {
		return analysis.ErrNoMatches
	}
	return nil
}

// BadRequestError indicates the server rejected the inputs (400).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("server error: %s", e.APIError.Error()) }
