// README: Redis client initialization for the lifecycle event stream and asynq.
package infra

import (
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"repairtrack/internal/config"
)

func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// AsynqRedisOpt shares the Redis settings with the task queue.
func AsynqRedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
