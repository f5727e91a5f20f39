package dify

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/qforge/casegen/internal/reliability"
)

// ErrorKind is an explicit classification of a failed upstream call.
// Callers branch on the kind, never on response text.
type ErrorKind string

const (
	KindConversationNotFound ErrorKind = "conversation_not_found"
	KindBadRequest           ErrorKind = "bad_request"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindRateLimited          ErrorKind = "rate_limited"
	KindUnavailable          ErrorKind = "unavailable"
	KindNetwork              ErrorKind = "network"
	KindProtocol             ErrorKind = "protocol"
)

// APIError is a structured upstream failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dify %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("dify %s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == kind
}

func classifyStatus(status int, code string) ErrorKind {
	if reliability.IsConversationNotFound(status, code) {
		return KindConversationNotFound
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}
