package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/internal/ledger/repository"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestLimiter(t *testing.T, limits config.Limits, clk clock.Clock) *StoreLimiter {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.RateWindow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := repository.NewStore(repository.Params{DB: db, GenID: node})
	return NewStoreLimiter(store, config.NewStaticLimits(limits), clk)
}

func testLimits(hourly, daily int) config.Limits {
	return config.Limits{
		DailyFreeCredits: 10,
		Tiers: map[string]config.TierLimit{
			"anonymous": {HourlyLimit: hourly, DailyLimit: daily},
			"paid":      {HourlyLimit: 120, DailyLimit: 0},
		},
	}
}

func TestCheck_SixthRequestDeniedAtHourlyLimitFive(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(5, 100), clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status, err := limiter.Check(ctx, "user-1", "anonymous")
		require.NoError(t, err)
		assert.True(t, status.Allowed, "request %d should be allowed", i+1)
		require.NoError(t, limiter.Record(ctx, "user-1"))
	}

	status, err := limiter.Check(ctx, "user-1", "anonymous")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, int64(0), status.RemainingHourly)
	assert.Equal(t, time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC), status.ResetAt)
}

func TestCheck_HourBoundaryOpensFreshWindow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 14, 59, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(2, 100), clk)
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "user-1"))
	require.NoError(t, limiter.Record(ctx, "user-1"))

	status, err := limiter.Check(ctx, "user-1", "anonymous")
	require.NoError(t, err)
	assert.False(t, status.Allowed)

	clk.Advance(2 * time.Minute)

	status, err = limiter.Check(ctx, "user-1", "anonymous")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, int64(2), status.RemainingHourly)
}

func TestCheck_DailyCeilingBindsAcrossHours(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(10, 3), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, "user-1"))
		clk.Advance(time.Hour)
	}

	// Fresh hour window, but the day ceiling is spent.
	status, err := limiter.Check(ctx, "user-1", "anonymous")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, int64(0), status.RemainingDaily)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), status.ResetAt)
}

func TestCheck_PaidTierHasNoDailyCeiling(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(5, 3), clk)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Record(ctx, "user-1"))
		clk.Advance(time.Hour)
	}

	status, err := limiter.Check(ctx, "user-1", "paid")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, UnboundedDaily, status.RemainingDaily)
}

func TestCheck_UnknownTierFallsBackToAnonymous(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(1, 100), clk)
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "user-1"))

	status, err := limiter.Check(ctx, "user-1", "vip-unheard-of")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
}

func TestCheck_IdentitiesAreIndependent(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, testLimits(1, 100), clk)
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "user-1"))

	status, err := limiter.Check(ctx, "user-2", "anonymous")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
}
