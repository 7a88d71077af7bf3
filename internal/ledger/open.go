package ledger

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

func NewRedisClient(host string) *redis.Client {
	addr := host + ":6379"
	logger.Logger.Debug("connecting to redis", "redis", addr)
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

// Builds the configured ledger backend. The file backend lives on fs.
func Open(cfg *config.Config, fs afero.Fs) (Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendFile:
		return NewFileLedger(fs, cfg.Ledger.Path), nil
	case config.LedgerBackendRedis:
		if cfg.Redis == nil || cfg.Redis.Host == "" {
			return nil, fmt.Errorf("ledger backend %q needs redis.host", cfg.Ledger.Backend)
		}
		return NewRedisLedger(NewRedisClient(cfg.Redis.Host), cfg.Ledger.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
