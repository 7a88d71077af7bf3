package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure RedisLedger implements Ledger interface.
var _ Ledger = (*RedisLedger)(nil)

// Sets the field to true only if it is not already true. Returns 1 when it changed.
var acquireScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == "1" then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], "1")
return 1
`)

// Ledger kept in one redis hash, team -> "1" | "0"
type RedisLedger struct {
	db  *redis.Client
	key string
}

func NewRedisLedger(db *redis.Client, key string) *RedisLedger {
	return &RedisLedger{db: db, key: key}
}

func (l *RedisLedger) Submitted(ctx context.Context, team string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RedisLedger.Submitted", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	val, err := l.db.HGet(ctx, l.key, team).Result()
	if errors.Is(err, redis.Nil) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no entry")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read lock")
		return false, fmt.Errorf("failed to read lock for %s: %w", team, err)
	}

	submitted, err := strconv.ParseBool(val)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid lock value")
		return false, fmt.Errorf("invalid lock value for %s: %w", team, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "read lock")
	return submitted, nil
}

func (l *RedisLedger) Acquire(ctx context.Context, team string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RedisLedger.Acquire", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	changed, err := acquireScript.Run(ctx, l.db, []string{l.key}, team).Int()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire lock")
		return false, fmt.Errorf("failed to acquire lock for %s: %w", team, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran acquire script")
	return changed == 1, nil
}

func (l *RedisLedger) Reset(ctx context.Context, team string) error {
	ctx, span := tracer.Start(ctx, "RedisLedger.Reset", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	if err := l.db.HSet(ctx, l.key, team, "0").Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reset lock")
		return fmt.Errorf("failed to reset lock for %s: %w", team, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reset lock")
	return nil
}

func (l *RedisLedger) Snapshot(ctx context.Context) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "RedisLedger.Snapshot")
	defer span.End()

	raw, err := l.db.HGetAll(ctx, l.key).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read ledger")
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	state := make(map[string]bool, len(raw))
	for team, val := range raw {
		submitted, err := strconv.ParseBool(val)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid lock value")
			return nil, fmt.Errorf("invalid lock value for %s: %w", team, err)
		}
		state[team] = submitted
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "read ledger")
	return state, nil
}
