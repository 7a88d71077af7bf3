package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

// Ensure RedisLimiterStore implements echo's RateLimiterStore interface.
var _ middleware.RateLimiterStore = (*RedisLimiterStore)(nil)

const window = time.Minute

var ErrNoIdentifier = errors.New("no identifier for rate limit")

// Fixed window counter per identifier shared by every server instance
type RedisLimiterStore struct {
	db         *redis.Client
	limiterKey string
	perMinute  int64
	failOpen   bool
}

type RedisLimiterConfig struct {
	RedisClient *redis.Client
	LimiterKey  string
	PerMinute   int64
	FailOpen    bool
}

func NewRedisLimitStore(config RedisLimiterConfig) *RedisLimiterStore {
	return &RedisLimiterStore{
		db:         config.RedisClient,
		limiterKey: config.LimiterKey,
		perMinute:  config.PerMinute,
		failOpen:   config.FailOpen,
	}
}

func (store *RedisLimiterStore) key(identifier string) string {
	return "submissionrelay-ratelimit-" + store.limiterKey + "-" + identifier
}

func (store *RedisLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := store.key(identifier)

	// INCR then set the expiry for the first hit in the window
	pipe := store.db.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Logger.WarnContext(ctx, "rate limiter unavailable", "key", key, "failOpen", store.failOpen, "error", err)
		return store.failOpen, err
	}

	if count.Val() > store.perMinute {
		return false, nil
	}

	return true, nil
}
