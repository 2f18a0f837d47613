package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

const keyPrefix = "ops:dedup:"

// Redis shares the seen-set across replicas using SET NX with an expiry.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedis creates a Redis-backed deduplicator.
func NewRedis(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

// IsDuplicate claims eventID. Redis errors fail open so that a cache outage
// never swallows user messages.
func (r *Redis) IsDuplicate(ctx context.Context, eventID string) bool {
	ok, err := r.client.SetNX(ctx, keyPrefix+eventID, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		r.logger.Warn("dedup check failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return !ok
}
