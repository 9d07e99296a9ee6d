package ratelimit

import (
	"context"

	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
)

// StoreLimiter keeps fixed-window counters in the ledger database. The
// increment is a single atomic upsert, so concurrent requests for the same
// identity never lose updates.
type StoreLimiter struct {
	store  ledgerdomain.Store
	limits *config.LimitsHolder
	clock  clock.Clock
}

func NewStoreLimiter(store ledgerdomain.Store, limits *config.LimitsHolder, clk clock.Clock) *StoreLimiter {
	return &StoreLimiter{store: store, limits: limits, clock: clk}
}

func (l *StoreLimiter) Check(ctx context.Context, identity, tier string) (Status, error) {
	now := l.clock.Now()
	tierLimit := l.limits.Get().TierFor(tier)

	hourStart, hourEnd := hourBucket(now)
	dayStart, dayEnd := dayBucket(now)

	hourCount, err := l.store.GetRateWindowCount(ctx, identity, ledgerdomain.ScopeHour, hourStart)
	if err != nil {
		return Status{}, err
	}

	var dayCount int64
	if tierLimit.DailyLimit > 0 {
		dayCount, err = l.store.GetRateWindowCount(ctx, identity, ledgerdomain.ScopeDay, dayStart)
		if err != nil {
			return Status{}, err
		}
	}

	return buildStatus(tierLimit, hourCount, dayCount, hourEnd, dayEnd), nil
}

func (l *StoreLimiter) Record(ctx context.Context, identity string) error {
	now := l.clock.Now()
	hourStart, hourEnd := hourBucket(now)
	dayStart, dayEnd := dayBucket(now)

	if err := l.store.IncrementRateWindow(ctx, identity, ledgerdomain.ScopeHour, hourStart, hourEnd); err != nil {
		return err
	}
	return l.store.IncrementRateWindow(ctx, identity, ledgerdomain.ScopeDay, dayStart, dayEnd)
}
