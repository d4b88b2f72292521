package repository

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

const revokedKeyPrefix = "revoked_session:"

// RedisRevocationStore keeps revoked token ids in Redis until the tokens expire.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a RedisRevocationStore.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// Revoke marks tokenID as revoked until the token's own expiry.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: revoke session: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID is revoked. Redis expiry does the time check.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string, _ time.Time) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check session revocation: %v", domain.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
