package dify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendChatMessageBlocking(t *testing.T) {
	var gotAuth string
	var gotReq ChatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" {
			t.Errorf("path = %q, want /chat-messages", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Answer:         "hello there",
			ConversationID: "abc123",
			MessageID:      "m1",
		})
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	resp, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hello", User: "u1"})
	if err != nil {
		t.Fatalf("SendChatMessage() error = %v", err)
	}
	if resp.Answer != "hello there" || resp.ConversationID != "abc123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.ResponseMode != ModeBlocking {
		t.Fatalf("ResponseMode = %q, want %q", gotReq.ResponseMode, ModeBlocking)
	}
}

func TestSendChatMessageConversationNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"conversation_not_exists","message":"Conversation Not Exists.","status":404}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	_, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hi", ConversationID: "stale"})
	if err == nil {
		t.Fatalf("expected error for rejected conversation id")
	}
	if !IsKind(err, KindConversationNotFound) {
		t.Fatalf("error kind = %v, want %s", err, KindConversationNotFound)
	}
}

func TestSendChatMessageNotFoundWithoutConversationCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"not_found","message":"Conversation Not Exists."}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	_, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hi", ConversationID: "stale"})
	if !IsKind(err, KindConversationNotFound) {
		t.Fatalf("error = %v, want %s for a 404 with a generic code", err, KindConversationNotFound)
	}
}

func TestSendChatMessageRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{Answer: "ok", ConversationID: "c1"})
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1", MaxRetries: 2})
	resp, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hi"})
	if err != nil {
		t.Fatalf("SendChatMessage() error = %v", err)
	}
	if resp.Answer != "ok" {
		t.Fatalf("Answer = %q, want ok", resp.Answer)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("upstream calls = %d, want 2", got)
	}
}

func TestSendChatMessageZeroRetriesSticks(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1", MaxRetries: 0})
	_, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hi"})
	if !IsKind(err, KindUnavailable) {
		t.Fatalf("error = %v, want %s", err, KindUnavailable)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1 with retries disabled", got)
	}
}

func TestSendChatMessageDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid_param","message":"query is required"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "key-1", MaxRetries: 3})
	_, err := c.SendChatMessage(context.Background(), ChatRequest{})
	if !IsKind(err, KindBadRequest) {
		t.Fatalf("error = %v, want %s", err, KindBadRequest)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestConsumeStreamAccumulatesAnswer(t *testing.T) {
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		`data: {"event":"message","answer":"Hel","conversation_id":"abc123"}`,
		"",
		`data: {"event":"message","answer":"lo"}`,
		"",
		`data: {"event":"message_end","conversation_id":"abc123","message_id":"m9"}`,
		"",
	}, "\n"))

	var events []string
	resp, err := consumeStream(stream, func(ev StreamEvent) error {
		events = append(events, ev.Event)
		return nil
	})
	if err != nil {
		t.Fatalf("consumeStream() error = %v", err)
	}
	if resp.Answer != "Hello" {
		t.Fatalf("Answer = %q, want Hello", resp.Answer)
	}
	if resp.ConversationID != "abc123" || resp.MessageID != "m9" {
		t.Fatalf("unexpected ids: %+v", resp)
	}
	if len(events) != 3 {
		t.Fatalf("events = %v, want 3 events", events)
	}
}

func TestConsumeStreamErrorEvent(t *testing.T) {
	stream := strings.NewReader(`data: {"event":"error","code":"conversation_not_exists","message":"Conversation Not Exists."}` + "\n")
	_, err := consumeStream(stream, nil)
	if !IsKind(err, KindConversationNotFound) {
		t.Fatalf("error = %v, want %s", err, KindConversationNotFound)
	}
}

func TestNewClientModes(t *testing.T) {
	if _, err := NewClient(Config{Mode: "api"}); err == nil {
		t.Fatalf("api mode without key should fail")
	}
	c, err := NewClient(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewClient(auto) error = %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("auto without key should yield mock client, got %T", c)
	}
	c, err = NewClient(Config{Mode: "auto", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient(auto+key) error = %v", err)
	}
	if _, ok := c.(*HTTPClient); !ok {
		t.Fatalf("auto with key should yield http client, got %T", c)
	}
	if _, err := NewClient(Config{Mode: "bogus"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
