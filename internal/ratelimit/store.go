package ratelimit

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisLimiter builds a limiter sharing its counters through Redis so every
// API replica enforces the same budget. rate uses the "<limit>-<period>" format,
// for example "120-M".
func NewRedisLimiter(client *redis.Client, prefix, rate string) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return limiter.New(store, parsed), nil
}
