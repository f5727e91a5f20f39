package reliability

import "time"

// IsRetryableHTTPStatus classifies HTTP status codes worth retrying against Dify.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsConversationNotFound reports whether a Dify rejection means the stored
// conversation id is no longer valid upstream. Any 404 on a chat turn is a
// not-found rejection (Dify's NotFound abort carries code "not_found", not
// a conversation-specific one). The explicit codes cover stream error
// events, which arrive without an HTTP status, and older deployments that
// return them with a 400.
func IsConversationNotFound(status int, code string) bool {
	if code == "conversation_not_exists" || code == "conversation_not_found" {
		return true
	}
	return status == 404
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
