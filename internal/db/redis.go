package db

import (
	"time"

	"github.com/fiemcasals/controlador/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 2 * time.Second

// ConnectRedis returns the client backing the group bus bridge, or nil when
// no address is configured (single-instance mode). Dial and socket I/O are
// bounded by REDIS_TIMEOUT and failed commands are retried once.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	timeout := cfg.RedisTimeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
}
