package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agberohq/agbero/internal/domain"
)

// proofCacheTTL bounds how long a fetched proof document stays cached. Proofs
// are immutable once submitted, so the TTL only limits memory use.
const proofCacheTTL = 15 * time.Minute

// ProofCache implements domain.ProofCache on Redis. The verifier agent uses it
// to avoid re-fetching the same proof document across evaluation passes.
type ProofCache struct {
	rdb *redis.Client
}

// NewProofCache creates a ProofCache backed by the given Client.
func NewProofCache(c *Client) *ProofCache {
	return &ProofCache{rdb: c.Underlying()}
}

func proofKey(uri string) string {
	return "proof:" + uri
}

// Get returns the cached proof content for a URI, or the empty string on a
// cache miss.
func (pc *ProofCache) Get(ctx context.Context, uri string) (string, error) {
	content, err := pc.rdb.Get(ctx, proofKey(uri)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: get proof %s: %w", uri, err)
	}
	return content, nil
}

// Set stores fetched proof content under its URI.
func (pc *ProofCache) Set(ctx context.Context, uri, content string) error {
	if err := pc.rdb.Set(ctx, proofKey(uri), content, proofCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis: set proof %s: %w", uri, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ProofCache = (*ProofCache)(nil)
