package dify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Response modes accepted by the Dify chat-messages endpoint.
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"
)

// ChatRequest is the payload sent to the Dify chat endpoint.
type ChatRequest struct {
	Inputs         map[string]string `json:"inputs"`
	Query          string            `json:"query"`
	ResponseMode   string            `json:"response_mode"`
	User           string            `json:"user"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// ChatResponse is the final reply for a single turn.
type ChatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// StreamEvent is a single event from a streaming chat response.
type StreamEvent struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// EventHandler receives streaming events as they arrive.
type EventHandler func(StreamEvent) error

// Client talks to a Dify-compatible chat application.
type Client interface {
	SendChatMessage(ctx context.Context, req ChatRequest) (ChatResponse, error)
	StreamChatMessage(ctx context.Context, req ChatRequest, onEvent EventHandler) (ChatResponse, error)
	Ping(ctx context.Context) error
}

// Config controls client construction.
type Config struct {
	Mode    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxRetries bounds retries of transient upstream statuses. Zero
	// disables them; negative selects the built-in default.
	MaxRetries int
}

// NewClient builds a client for the configured mode. In auto mode the real
// API client is used when an API key is present, otherwise the mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewHTTPClient(cfg), nil
		}
		return NewMockClient(), nil
	case "api":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("dify API key is required for api mode")
		}
		return NewHTTPClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported dify client mode %q", cfg.Mode)
	}
}
