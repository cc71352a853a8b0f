package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const blacklistKeyPrefix = "auth:blacklist:"

// BlacklistRepository is a short-lived denylist of access-token jtis in
// Redis. It is defense-in-depth for tokens revoked before their natural
// expiry; token_version plus expiry remain authoritative. A nil client
// degrades to an always-empty blacklist.
type BlacklistRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBlacklistRepository constructs a blacklist repository.
func NewBlacklistRepository(client *redis.Client, logger *zap.Logger) *BlacklistRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlacklistRepository{client: client, logger: logger}
}

// Put stores a denylist marker for the jti. The TTL must equal the
// remaining life of the token; non-positive TTLs are dropped since the
// token is already invalid by expiry.
func (r *BlacklistRepository) Put(ctx context.Context, jti string, ttl time.Duration) error {
	if r.client == nil || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, blacklistKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist put %s: %w", jti, err)
	}
	return nil
}

// Contains reports whether the jti is currently denylisted.
func (r *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	n, err := r.client.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup %s: %w", jti, err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection if present.
func (r *BlacklistRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
