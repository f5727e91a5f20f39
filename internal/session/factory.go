package session

import (
	"context"
	"strings"
	"time"
)

// NewStore picks Redis when an address is configured, otherwise in-memory.
func NewStore(ctx context.Context, opts RedisOptions, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return NewMemoryStore(ttl), nil
	}
	if opts.TTL <= 0 {
		opts.TTL = ttl
	}
	return NewRedisStore(ctx, opts)
}
