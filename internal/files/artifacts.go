package files

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrArtifactNotFound is returned for unknown artifact ids.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is a finalized export kept for download.
type Artifact struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactStore persists finalized exports.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, id string) (*Artifact, error)
	DeleteBySession(ctx context.Context, sessionID string) error
	Close() error
}

// NewArtifactStore picks Postgres when a database URL is configured,
// otherwise keeps artifacts in memory.
func NewArtifactStore(ctx context.Context, databaseURL string) (ArtifactStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryArtifacts(), nil
	}
	return NewPostgresArtifacts(ctx, databaseURL)
}

func newArtifactID() string {
	return "gen_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// MemoryArtifacts is the in-process fallback store.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	items map[string]*Artifact
}

func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{items: make(map[string]*Artifact)}
}

func (m *MemoryArtifacts) Save(_ context.Context, a *Artifact) error {
	if a.ID == "" {
		a.ID = newArtifactID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	copied := *a
	copied.Data = append([]byte(nil), a.Data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ID] = &copied
	return nil
}

func (m *MemoryArtifacts) Get(_ context.Context, id string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	copied := *a
	copied.Data = append([]byte(nil), a.Data...)
	return &copied, nil
}

func (m *MemoryArtifacts) DeleteBySession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.items {
		if a.SessionID == sessionID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *MemoryArtifacts) Close() error { return nil }
