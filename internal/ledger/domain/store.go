package domain

import (
	"context"
	"errors"
	"time"
)

// Store is the durable, transactional ledger storage. All account mutations
// go through CompareAndSwapAccount so concurrent writers for the same
// identity serialize on the version column; distinct identities never
// contend. Implementable over any transactional store.
type Store interface {
	// InTransaction runs fn against a store view bound to one database
	// transaction. The orchestrator composes a whole settlement inside it.
	InTransaction(ctx context.Context, fn func(Store) error) error

	// EnsureAccount lazily provisions the account on first interaction and
	// returns the current row.
	EnsureAccount(ctx context.Context, identity string, now time.Time) (*CreditAccount, error)
	GetAccount(ctx context.Context, identity string) (*CreditAccount, error)
	// CompareAndSwapAccount writes the account conditional on its version
	// being expectedVersion. Returns ErrConflict when another writer got
	// there first; callers retry with fresh state.
	CompareAndSwapAccount(ctx context.Context, account *CreditAccount, expectedVersion int64) error

	// AppendTransaction appends to the immutable log. Returns false without
	// error when the transaction carries a reference that was already
	// recorded (grant dedupe).
	AppendTransaction(ctx context.Context, txn *Transaction) (bool, error)
	ListTransactions(ctx context.Context, identity string) ([]Transaction, error)

	// AppendUsage inserts the usage record, reserving its request_ref.
	// Returns false without error when the ref already exists.
	AppendUsage(ctx context.Context, rec *UsageRecord) (bool, error)
	FindUsageByRef(ctx context.Context, requestRef string) (*UsageRecord, error)

	// IncrementRateWindow is a single atomic upsert-and-increment for the
	// (identity, scope, windowStart) counter.
	IncrementRateWindow(ctx context.Context, identity string, scope WindowScope, windowStart, windowEnd time.Time) error
	GetRateWindowCount(ctx context.Context, identity string, scope WindowScope, windowStart time.Time) (int64, error)
}

var (
	// ErrConflict marks a lost compare-and-swap race. Internal: the caller's
	// retry loop absorbs it, it is never surfaced to API clients.
	ErrConflict        = errors.New("ledger_conflict")
	ErrAccountNotFound = errors.New("account_not_found")
)
