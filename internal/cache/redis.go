package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avoronin/corptravel/config"
	"github.com/avoronin/corptravel/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client   *redis.Client
	quoteTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, quoteTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		quoteTTL: quoteTTL,
	}
}

// AcquireAccountLock takes the per-account settlement lock. Settlement holds
// it across its check-and-mutate step so two requests of the same
// organization never interleave.
func (c *RedisCache) AcquireAccountLock(ctx context.Context, accountID int64, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, accountLockKey(accountID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseAccountLock(ctx context.Context, accountID int64) error {
	return c.client.Del(ctx, accountLockKey(accountID)).Err()
}

func (c *RedisCache) GetQuote(ctx context.Context, searchTrace string) (*domain.PricingSnapshot, error) {
	data, err := c.client.Get(ctx, quoteKey(searchTrace)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var pricing domain.PricingSnapshot
	if err := json.Unmarshal(data, &pricing); err != nil {
		return nil, err
	}
	return &pricing, nil
}

func (c *RedisCache) SetQuote(ctx context.Context, searchTrace string, pricing domain.PricingSnapshot) error {
	payload, err := json.Marshal(pricing)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, quoteKey(searchTrace), payload, c.quoteTTL).Err()
}

func accountLockKey(accountID int64) string {
	return fmt.Sprintf("lock:account:%d", accountID)
}

func quoteKey(searchTrace string) string {
	return fmt.Sprintf("cache:quote:%s", searchTrace)
}
