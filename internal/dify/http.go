package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qforge/casegen/internal/reliability"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	retryBackoffBase   = 200 * time.Millisecond
	retryBackoffCap    = 2 * time.Second
	maxErrorBodyBytes  = 4 << 10
	streamBufferBytes  = 64 * 1024
	streamMaxLineBytes = 4 * 1024 * 1024
)

// HTTPClient talks to the hosted Dify API over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	client     *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxRetries: retries,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendChatMessage issues one blocking turn. Transient upstream statuses are
// retried with capped backoff; a rejected conversation id is not, that
// recovery belongs to the caller.
func (c *HTTPClient) SendChatMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.ResponseMode == "" {
		req.ResponseMode = ModeBlocking
	}
	if req.Inputs == nil {
		req.Inputs = map[string]string{}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, reliability.ExponentialBackoff(attempt-1, retryBackoffBase, retryBackoffCap)); err != nil {
				return ChatResponse{}, err
			}
		}

		res, err := c.post(ctx, c.baseURL+"/chat-messages", payload)
		if err != nil {
			lastErr = &APIError{Kind: KindNetwork, Message: err.Error()}
			continue
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			var out ChatResponse
			err := json.NewDecoder(res.Body).Decode(&out)
			res.Body.Close()
			if err != nil {
				return ChatResponse{}, &APIError{Kind: KindProtocol, StatusCode: res.StatusCode, Message: fmt.Sprintf("decode chat response: %v", err)}
			}
			return out, nil
		}

		apiErr := c.errorFromResponse(res)
		res.Body.Close()
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return ChatResponse{}, apiErr
		}
		lastErr = apiErr
	}

	return ChatResponse{}, lastErr
}

// StreamChatMessage issues one streaming turn and forwards every upstream
// event to onEvent. No automatic retries here: deltas may already have been
// delivered when a failure happens mid-stream.
func (c *HTTPClient) StreamChatMessage(ctx context.Context, req ChatRequest, onEvent EventHandler) (ChatResponse, error) {
	req.ResponseMode = ModeStreaming
	if req.Inputs == nil {
		req.Inputs = map[string]string{}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	res, err := c.post(ctx, c.baseURL+"/chat-messages", payload)
	if err != nil {
		return ChatResponse{}, &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ChatResponse{}, c.errorFromResponse(res)
	}

	return consumeStream(res.Body, onEvent)
}

// Ping checks upstream reachability via the app parameters endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parameters", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return c.errorFromResponse(res)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.client.Do(httpReq)
}

func (c *HTTPClient) errorFromResponse(res *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))

	var errBody struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errBody)

	msg := strings.TrimSpace(errBody.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}

	return &APIError{
		Kind:       classifyStatus(res.StatusCode, errBody.Code),
		StatusCode: res.StatusCode,
		Code:       errBody.Code,
		Message:    msg,
	}
}

func consumeStream(body io.Reader, onEvent EventHandler) (ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, streamBufferBytes), streamMaxLineBytes)

	var (
		out     ChatResponse
		answers strings.Builder
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || line == "[DONE]" {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			// Dify occasionally interleaves keepalive noise; skip it.
			continue
		}

		switch ev.Event {
		case "message":
			answers.WriteString(ev.Answer)
			if ev.ConversationID != "" {
				out.ConversationID = ev.ConversationID
			}
			if ev.MessageID != "" {
				out.MessageID = ev.MessageID
			}
		case "message_end":
			if ev.ConversationID != "" {
				out.ConversationID = ev.ConversationID
			}
			if ev.MessageID != "" {
				out.MessageID = ev.MessageID
			}
		case "error":
			kind := KindUnavailable
			if reliability.IsConversationNotFound(0, ev.Code) {
				kind = KindConversationNotFound
			}
			return ChatResponse{}, &APIError{Kind: kind, Code: ev.Code, Message: ev.Message}
		}

		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return ChatResponse{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return ChatResponse{}, &APIError{Kind: KindNetwork, Message: fmt.Sprintf("stream read: %v", err)}
	}

	out.Answer = answers.String()
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
