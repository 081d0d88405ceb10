package holds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

const keyPrefix = "meridian:hold:"

// RedisStore keeps holds as Redis keys whose TTL is the hold lifetime, so
// an abandoned hold disappears without a sweeper.
type RedisStore struct {
	client *redis.Client
	clock  sharedDomain.Clock
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, clock sharedDomain.Clock) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, clock), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, clock sharedDomain.Clock) *RedisStore {
	return &RedisStore{client: client, clock: clock}
}

func key(sessionID uuid.UUID) string { return keyPrefix + sessionID.String() }

func (s *RedisStore) Put(ctx context.Context, h domain.Hold) error {
	ttl := h.ExpiresAt.Sub(s.clock.Now())
	if ttl < time.Millisecond {
		return s.Release(ctx, h.SessionID)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hold: %w", err)
	}
	if err := s.client.Set(ctx, key(h.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save hold: %w", err)
	}
	return nil
}

// Get reads the hold together with its remaining TTL; ExpiresAt is derived
// from the TTL so an Extend is reflected without rewriting the value.
func (s *RedisStore) Get(ctx context.Context, sessionID uuid.UUID) (domain.Hold, bool, error) {
	k := key(sessionID)
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Hold{}, false, fmt.Errorf("lookup hold: %w", err)
	}

	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Hold{}, false, nil
	}
	if err != nil {
		return domain.Hold{}, false, fmt.Errorf("lookup hold: %w", err)
	}
	var h domain.Hold
	if err := json.Unmarshal(data, &h); err != nil {
		return domain.Hold{}, false, fmt.Errorf("unmarshal hold: %w", err)
	}
	if remaining := pttl.Val(); remaining > 0 {
		h.ExpiresAt = s.clock.Now().Add(remaining).Truncate(time.Millisecond)
	}
	return h, true, nil
}

func (s *RedisStore) Extend(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl < time.Millisecond {
		return domain.ErrHoldExpired
	}
	ok, err := s.client.PExpire(ctx, key(sessionID), ttl).Result()
	if err != nil {
		return fmt.Errorf("extend hold: %w", err)
	}
	if !ok {
		return domain.ErrHoldExpired
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
