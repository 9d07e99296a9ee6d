// Package ratelimit enforces per-identity fixed-window request ceilings.
package ratelimit

import (
	"context"
	"time"

	"github.com/creditrail/creditrail/internal/config"
)

// Status is the outcome of a rate check. RemainingDaily is -1 when the tier
// has no daily ceiling.
type Status struct {
	Allowed         bool      `json:"allowed"`
	RemainingHourly int64     `json:"remaining_hourly"`
	RemainingDaily  int64     `json:"remaining_daily"`
	ResetAt         time.Time `json:"reset_at"`
}

// Limiter counts requests in clock-aligned hour and day buckets. Check and
// Record are deliberately separate calls: a request is counted against the
// window active when Record runs, and two racing requests may both pass
// Check before either Records. The bound is best-effort, not exact.
type Limiter interface {
	Check(ctx context.Context, identity, tier string) (Status, error)
	Record(ctx context.Context, identity string) error
}

// UnboundedDaily marks a tier without a daily ceiling.
const UnboundedDaily int64 = -1

func hourBucket(now time.Time) (time.Time, time.Time) {
	start := now.UTC().Truncate(time.Hour)
	return start, start.Add(time.Hour)
}

func dayBucket(now time.Time) (time.Time, time.Time) {
	t := now.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func buildStatus(tier config.TierLimit, hourCount, dayCount int64, hourEnd, dayEnd time.Time) Status {
	st := Status{
		RemainingHourly: int64(tier.HourlyLimit) - hourCount,
		RemainingDaily:  UnboundedDaily,
		ResetAt:         hourEnd,
	}
	if st.RemainingHourly < 0 {
		st.RemainingHourly = 0
	}

	hourlyOK := hourCount < int64(tier.HourlyLimit)
	dailyOK := true
	if tier.DailyLimit > 0 {
		st.RemainingDaily = int64(tier.DailyLimit) - dayCount
		if st.RemainingDaily < 0 {
			st.RemainingDaily = 0
		}
		dailyOK = dayCount < int64(tier.DailyLimit)
	}

	st.Allowed = hourlyOK && dailyOK
	if hourlyOK && !dailyOK {
		st.ResetAt = dayEnd
	}
	return st
}
