package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
}

type store struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewStore(p Params) ledgerdomain.Store {
	return &store{db: p.DB, genID: p.GenID}
}

func (s *store) InTransaction(ctx context.Context, fn func(ledgerdomain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx, genID: s.genID})
	})
}

func (s *store) EnsureAccount(ctx context.Context, identity string, now time.Time) (*ledgerdomain.CreditAccount, error) {
	now = now.UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoNothing: true,
	}).Create(&ledgerdomain.CreditAccount{
		Identity:             identity,
		DailyFreeWindowStart: now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}).Error
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, identity)
}

func (s *store) GetAccount(ctx context.Context, identity string) (*ledgerdomain.CreditAccount, error) {
	var account ledgerdomain.CreditAccount
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *store) CompareAndSwapAccount(ctx context.Context, account *ledgerdomain.CreditAccount, expectedVersion int64) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE credit_accounts SET
			balance = ?,
			lifetime_purchased = ?,
			lifetime_consumed = ?,
			daily_free_used = ?,
			daily_free_window_start = ?,
			version = ?,
			updated_at = ?
		WHERE identity = ? AND version = ?`,
		account.Balance,
		account.LifetimePurchased,
		account.LifetimeConsumed,
		account.DailyFreeUsed,
		account.DailyFreeWindowStart.UTC(),
		expectedVersion+1,
		now,
		account.Identity,
		expectedVersion,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrConflict
	}
	account.Version = expectedVersion + 1
	account.UpdatedAt = now
	return nil
}

func (s *store) AppendTransaction(ctx context.Context, txn *ledgerdomain.Transaction) (bool, error) {
	if txn.ID == 0 {
		txn.ID = s.genID.Generate()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *store) ListTransactions(ctx context.Context, identity string) ([]ledgerdomain.Transaction, error) {
	var txns []ledgerdomain.Transaction
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("created_at, id").
		Find(&txns).Error
	return txns, err
}

func (s *store) AppendUsage(ctx context.Context, rec *ledgerdomain.UsageRecord) (bool, error) {
	if rec.ID == 0 {
		rec.ID = s.genID.Generate()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_ref"}},
		DoNothing: true,
	}).Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *store) FindUsageByRef(ctx context.Context, requestRef string) (*ledgerdomain.UsageRecord, error) {
	var rec ledgerdomain.UsageRecord
	err := s.db.WithContext(ctx).Where("request_ref = ?", requestRef).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *store) IncrementRateWindow(ctx context.Context, identity string, scope ledgerdomain.WindowScope, windowStart, windowEnd time.Time) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity"}, {Name: "scope"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("rate_windows.request_count + 1"),
			"updated_at":    now,
		}),
	}).Create(&ledgerdomain.RateWindow{
		ID:           s.genID.Generate(),
		Identity:     identity,
		Scope:        scope,
		WindowStart:  windowStart.UTC(),
		WindowEnd:    windowEnd.UTC(),
		RequestCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error
}

func (s *store) GetRateWindowCount(ctx context.Context, identity string, scope ledgerdomain.WindowScope, windowStart time.Time) (int64, error) {
	var window ledgerdomain.RateWindow
	err := s.db.WithContext(ctx).
		Where("identity = ? AND scope = ? AND window_start = ?", identity, scope, windowStart.UTC()).
		First(&window).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return window.RequestCount, nil
}
