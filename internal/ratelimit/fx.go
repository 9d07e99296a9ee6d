package ratelimit

import (
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg    config.Config
	Limits *config.LimitsHolder
	Store  ledgerdomain.Store
	Clock  clock.Clock
	Log    *zap.Logger
}

// NewLimiter picks the redis backend when configured, otherwise falls back
// to fixed-window counters in the ledger database.
func NewLimiter(p Params) Limiter {
	if addr := p.Cfg.RateLimit.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: p.Cfg.RateLimit.RedisPassword,
			DB:       p.Cfg.RateLimit.RedisDB,
		})
		p.Log.Info("rate limiter using redis backend", zap.String("addr", addr))
		return NewRedisLimiter(client, p.Limits, p.Clock)
	}
	return NewStoreLimiter(p.Store, p.Limits, p.Clock)
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)
