package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsConversationNotFound(t *testing.T) {
	if !IsConversationNotFound(404, "conversation_not_exists") {
		t.Fatalf("404/conversation_not_exists should classify as conversation not found")
	}
	if !IsConversationNotFound(400, "conversation_not_exists") {
		t.Fatalf("code match should not depend on status")
	}
	if !IsConversationNotFound(0, "conversation_not_exists") {
		t.Fatalf("stream error events carry no status; the code alone must match")
	}
	if !IsConversationNotFound(404, "not_found") {
		t.Fatalf("a 404 rejection should classify regardless of the body code")
	}
	if IsConversationNotFound(400, "not_found") {
		t.Fatalf("non-404 without a conversation code should not classify")
	}
	if IsConversationNotFound(500, "") {
		t.Fatalf("server errors should not classify as conversation not found")
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 800 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
