package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

const (
	stateKeyPrefix = "oauth_state:"
	stateConsumed  = "consumed"
)

// Return codes of consumeStateScript.
const (
	consumeUnknown = 0
	consumeOK      = 1
	consumeReplay  = 2
	consumeExpired = 3
)

// The stored value is the expiry in unix milliseconds until the state is
// consumed, then the literal "consumed" for the rest of the key's TTL.
const consumeStateScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return 0
end
if v == "consumed" then
  return 2
end
if tonumber(ARGV[1]) >= tonumber(v) then
  return 3
end
redis.call("SET", KEYS[1], "consumed", "KEEPTTL")
return 1
`

// RedisStateStore keeps OAuth states in Redis so every API instance sees the
// same single-use values.
type RedisStateStore struct {
	client    *redis.Client
	script    *redis.Script
	retention time.Duration
}

// NewRedisStateStore creates a RedisStateStore.
func NewRedisStateStore(client *redis.Client, retention time.Duration) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		script:    redis.NewScript(consumeStateScript),
		retention: retention,
	}
}

// Save stores a fresh state.
func (s *RedisStateStore) Save(ctx context.Context, state domain.OAuthState) error {
	if state.Value == "" {
		return errors.New("oauth state value is empty")
	}
	ttl := state.ExpiresAt.Sub(state.CreatedAt) + s.retention
	if ttl <= 0 {
		return errors.New("oauth state already expired")
	}

	ok, err := s.client.SetNX(ctx, stateKeyPrefix+state.Value,
		strconv.FormatInt(state.ExpiresAt.UnixMilli(), 10), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: save oauth state: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return errors.New("oauth state collision")
	}
	return nil
}

// Consume atomically checks and invalidates value.
func (s *RedisStateStore) Consume(ctx context.Context, value string, now time.Time) error {
	res, err := s.script.Run(ctx, s.client, []string{stateKeyPrefix + value}, now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("%w: consume oauth state: %v", domain.ErrStoreUnavailable, err)
	}

	switch res {
	case consumeOK:
		return nil
	case consumeReplay:
		return domain.ErrStateReplay
	case consumeExpired:
		return domain.ErrStateExpired
	case consumeUnknown:
		return domain.ErrStateUnknown
	default:
		return fmt.Errorf("consume oauth state: unexpected script result %d", res)
	}
}
