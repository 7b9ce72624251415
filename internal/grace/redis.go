package grace

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// RedisStore keeps grace flags in Redis so every API replica sees them.
type RedisStore struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a grace store backed by the given Redis client.
func NewRedisStore(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    normalizeTTL(ttl),
		logger: logger.Named("grace_redis"),
	}
}

// Set marks the session as inside its grace window.
func (s *RedisStore) Set(ctx context.Context, userID, sessionID string) error {
	cmd := s.client.B().Set().Key(Key(userID, sessionID)).Value("1").Px(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set grace flag: %w", err)
	}

	s.logger.Debug("Set grace flag",
		zap.String("userID", userID),
		zap.Duration("ttl", s.ttl))

	return nil
}

// Active reports whether the session is still inside its grace window.
func (s *RedisStore) Active(ctx context.Context, userID, sessionID string) (bool, error) {
	cmd := s.client.B().Exists().Key(Key(userID, sessionID)).Build()
	count, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check grace flag: %w", err)
	}

	return count > 0, nil
}

// Close is a no-op; the client is owned by the redis manager.
func (s *RedisStore) Close() {}
