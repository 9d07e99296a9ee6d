package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyHourWindow = "rl:hour:%s:%d"
	keyDayWindow  = "rl:day:%s:%d"
)

// RedisLimiter keeps the same fixed-window counters in redis. INCR is atomic
// per key, so the upsert-and-increment guarantee matches the store backend.
// Keys expire shortly after their window ends.
type RedisLimiter struct {
	client *redis.Client
	limits *config.LimitsHolder
	clock  clock.Clock
}

func NewRedisLimiter(client *redis.Client, limits *config.LimitsHolder, clk clock.Clock) *RedisLimiter {
	return &RedisLimiter{client: client, limits: limits, clock: clk}
}

func (l *RedisLimiter) Check(ctx context.Context, identity, tier string) (Status, error) {
	now := l.clock.Now()
	tierLimit := l.limits.Get().TierFor(tier)

	hourStart, hourEnd := hourBucket(now)
	dayStart, dayEnd := dayBucket(now)

	hourCount, err := l.count(ctx, fmt.Sprintf(keyHourWindow, identity, hourStart.Unix()))
	if err != nil {
		return Status{}, err
	}

	var dayCount int64
	if tierLimit.DailyLimit > 0 {
		dayCount, err = l.count(ctx, fmt.Sprintf(keyDayWindow, identity, dayStart.Unix()))
		if err != nil {
			return Status{}, err
		}
	}

	return buildStatus(tierLimit, hourCount, dayCount, hourEnd, dayEnd), nil
}

func (l *RedisLimiter) Record(ctx context.Context, identity string) error {
	now := l.clock.Now()
	hourStart, hourEnd := hourBucket(now)
	dayStart, dayEnd := dayBucket(now)

	if err := l.increment(ctx, fmt.Sprintf(keyHourWindow, identity, hourStart.Unix()), hourEnd.Sub(now)); err != nil {
		return err
	}
	return l.increment(ctx, fmt.Sprintf(keyDayWindow, identity, dayStart.Unix()), dayEnd.Sub(now))
}

func (l *RedisLimiter) count(ctx context.Context, key string) (int64, error) {
	n, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (l *RedisLimiter) increment(ctx context.Context, key string, ttl time.Duration) error {
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	// Grace period so a Check racing the window edge still sees the counter.
	pipe.ExpireNX(ctx, key, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}
