package dify

import (
	"context"
	"strings"
	"testing"
)

func TestMockClientIssuesAndThreadsConversationID(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	first, err := c.SendChatMessage(ctx, ChatRequest{Query: "hello", User: "u1"})
	if err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	if first.ConversationID == "" {
		t.Fatalf("first turn should assign a conversation id")
	}

	second, err := c.SendChatMessage(ctx, ChatRequest{Query: "more", ConversationID: first.ConversationID})
	if err != nil {
		t.Fatalf("second turn error = %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("conversation id changed: %q -> %q", first.ConversationID, second.ConversationID)
	}
	if second.Answer == first.Answer {
		t.Fatalf("replies should advance between turns")
	}
}

func TestMockClientRejectsUnknownConversationID(t *testing.T) {
	c := NewMockClient()
	_, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "hi", ConversationID: "stale"})
	if !IsKind(err, KindConversationNotFound) {
		t.Fatalf("error = %v, want %s", err, KindConversationNotFound)
	}
}

func TestMockClientReadyReplyOnGenerationKeyword(t *testing.T) {
	c := NewMockClient()
	resp, err := c.SendChatMessage(context.Background(), ChatRequest{Query: "please start generation"})
	if err != nil {
		t.Fatalf("SendChatMessage() error = %v", err)
	}
	if !strings.Contains(strings.ToLower(resp.Answer), "ready to generate") {
		t.Fatalf("Answer = %q, want ready marker", resp.Answer)
	}
}

func TestMockClientStreamDeliversDeltas(t *testing.T) {
	c := NewMockClient()
	var got strings.Builder
	var sawEnd bool
	resp, err := c.StreamChatMessage(context.Background(), ChatRequest{Query: "hello"}, func(ev StreamEvent) error {
		switch ev.Event {
		case "message":
			got.WriteString(ev.Answer)
		case "message_end":
			sawEnd = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChatMessage() error = %v", err)
	}
	if got.String() != resp.Answer {
		t.Fatalf("joined deltas = %q, want %q", got.String(), resp.Answer)
	}
	if !sawEnd {
		t.Fatalf("missing message_end event")
	}
}
