package files

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArtifacts persists finalized exports in PostgreSQL.
type PostgresArtifacts struct {
	pool *pgxpool.Pool
}

func NewPostgresArtifacts(ctx context.Context, databaseURL string) (*PostgresArtifacts, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArtifacts{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS generated_files (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generated_files_session ON generated_files (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresArtifacts) Save(ctx context.Context, a *Artifact) error {
	if a.ID == "" {
		a.ID = newArtifactID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO generated_files (id, session_id, name, content_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID,
		a.SessionID,
		a.Name,
		a.ContentType,
		a.Data,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

func (s *PostgresArtifacts) Get(ctx context.Context, id string) (*Artifact, error) {
	var a Artifact
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, name, content_type, data, created_at
		 FROM generated_files WHERE id=$1`,
		id,
	).Scan(&a.ID, &a.SessionID, &a.Name, &a.ContentType, &a.Data, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	return &a, nil
}

func (s *PostgresArtifacts) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM generated_files WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session artifacts: %w", err)
	}
	return nil
}

func (s *PostgresArtifacts) Close() error {
	s.pool.Close()
	return nil
}
