package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreCreateGetUpdate(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	sess, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == "" || sess.Status != StatusCreated {
		t.Fatalf("unexpected new session: %+v", sess)
	}

	updated, err := s.Update(ctx, sess.ID, func(in *Session) error {
		in.Status = StatusChatting
		in.ConversationID = "abc123"
		in.AppendMessage("user", "hello", time.Now().UTC())
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != StatusChatting || updated.ConversationID != "abc123" {
		t.Fatalf("update not applied: %+v", updated)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Fatalf("history = %+v, want one hello message", got.History)
	}

	// Mutating the returned copy must not leak into the store.
	got.ConversationID = "tampered"
	again, _ := s.Get(ctx, sess.ID)
	if again.ConversationID != "abc123" {
		t.Fatalf("store leaked caller mutation: %q", again.ConversationID)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(30 * time.Millisecond)
	ctx := context.Background()

	sess, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := s.Get(ctx, sess.ID); err != ErrNotFound {
		t.Fatalf("Get() after TTL error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExtendResetsTTL(t *testing.T) {
	s := NewMemoryStore(60 * time.Millisecond)
	ctx := context.Background()

	sess, _ := s.Create(ctx)
	time.Sleep(40 * time.Millisecond)
	if err := s.Extend(ctx, sess.ID); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := s.Get(ctx, sess.ID); err != nil {
		t.Fatalf("Get() after extend error = %v", err)
	}
}

func TestMemoryStoreJanitorEvicts(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := s.Create(ctx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(70 * time.Millisecond)
	if got := s.Count(); got != 0 {
		t.Fatalf("Count() after janitor = %d, want 0", got)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	sess, _ := s.Create(ctx)
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, sess.ID); err != ErrNotFound {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}
