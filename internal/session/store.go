package session

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Store persists session records with a sliding TTL. One request mutates
// one session at a time; Update is read-modify-write, not a transaction.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error)
	Extend(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

const defaultTTL = 2 * time.Hour

func newSessionID() string {
	u := uuid.New()
	return "sess_" + hex.EncodeToString(u[:6])
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:        newSessionID(),
		Status:    StatusCreated,
		History:   []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
