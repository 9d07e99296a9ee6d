package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) ledgerdomain.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.CreditAccount{},
		&ledgerdomain.Transaction{},
		&ledgerdomain.UsageRecord{},
		&ledgerdomain.RateWindow{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewStore(Params{DB: db, GenID: node})
}

func TestEnsureAccount_LazyProvisioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	account, err := store.EnsureAccount(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, account.Balance)
	assert.Equal(t, 0.0, account.DailyFreeUsed)
	assert.Equal(t, int64(0), account.Version)

	// Second ensure returns the same row, not a fresh one.
	account.Balance = 42
	require.NoError(t, store.CompareAndSwapAccount(ctx, account, 0))

	again, err := store.EnsureAccount(ctx, "user-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 42.0, again.Balance)
	assert.Equal(t, int64(1), again.Version)
}

func TestCompareAndSwapAccount_Conflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	account, err := store.EnsureAccount(ctx, "user-1", now)
	require.NoError(t, err)

	first := *account
	second := *account

	first.Balance = 10
	require.NoError(t, store.CompareAndSwapAccount(ctx, &first, 0))

	// The stale writer loses.
	second.Balance = 99
	err = store.CompareAndSwapAccount(ctx, &second, 0)
	assert.ErrorIs(t, err, ledgerdomain.ErrConflict)

	current, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, current.Balance)
}

func TestAppendTransaction_ReferenceDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ref := "stripe-evt-123"
	inserted, err := store.AppendTransaction(ctx, &ledgerdomain.Transaction{
		Identity:     "user-1",
		Type:         ledgerdomain.TransactionPurchase,
		Amount:       50,
		BalanceAfter: 50,
		Reference:    &ref,
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AppendTransaction(ctx, &ledgerdomain.Transaction{
		Identity:     "user-1",
		Type:         ledgerdomain.TransactionPurchase,
		Amount:       50,
		BalanceAfter: 100,
		Reference:    &ref,
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	txns, err := store.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestAppendTransaction_NilReferencesNeverCollide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inserted, err := store.AppendTransaction(ctx, &ledgerdomain.Transaction{
			Identity: "user-1",
			Type:     ledgerdomain.TransactionConsumption,
			Amount:   -1,
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	txns, err := store.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestAppendUsage_RequestRefDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &ledgerdomain.UsageRecord{
		Identity:       "user-1",
		RequestRef:     "req-1",
		Provider:       "openai",
		Model:          "gpt-4o",
		CreditsCharged: 3,
		Status:         ledgerdomain.UsageCompleted,
	}
	inserted, err := store.AppendUsage(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &ledgerdomain.UsageRecord{
		Identity:       "user-1",
		RequestRef:     "req-1",
		Provider:       "openai",
		Model:          "gpt-4o",
		CreditsCharged: 99,
		Status:         ledgerdomain.UsageCompleted,
	}
	inserted, err = store.AppendUsage(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := store.FindUsageByRef(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 3.0, found.CreditsCharged)
}

func TestIncrementRateWindow_UpsertAndIncrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.IncrementRateWindow(ctx, "user-1", ledgerdomain.ScopeHour, start, end))
	}

	count, err := store.GetRateWindowCount(ctx, "user-1", ledgerdomain.ScopeHour, start)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	// Distinct identities and scopes keep independent counters.
	require.NoError(t, store.IncrementRateWindow(ctx, "user-2", ledgerdomain.ScopeHour, start, end))
	count, err = store.GetRateWindowCount(ctx, "user-2", ledgerdomain.ScopeHour, start)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.GetRateWindowCount(ctx, "user-1", ledgerdomain.ScopeDay, start)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestInTransaction_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InTransaction(ctx, func(tx ledgerdomain.Store) error {
		if _, err := tx.AppendTransaction(ctx, &ledgerdomain.Transaction{
			Identity: "user-1",
			Type:     ledgerdomain.TransactionBonus,
			Amount:   5,
		}); err != nil {
			return err
		}
		return ledgerdomain.ErrConflict
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrConflict)

	txns, err := store.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, txns)
}
