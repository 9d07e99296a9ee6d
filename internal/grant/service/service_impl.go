package service

import (
	"context"
	"errors"
	"strings"

	"github.com/creditrail/creditrail/internal/clock"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	obsmetrics "github.com/creditrail/creditrail/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxCASRetries = 5

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      ledgerdomain.Store
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      ledgerdomain.Store
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) grantdomain.Service {
	return &Service{
		log:        p.Log.Named("grant.service"),
		store:      p.Store,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Grant adds credits to an account. The transaction's unique reference
// deduplicates payment-provider retries: a repeated reference leaves the
// ledger untouched and returns the current balance.
func (s *Service) Grant(ctx context.Context, req grantdomain.GrantRequest) (grantdomain.GrantResult, error) {
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return grantdomain.GrantResult{}, grantdomain.ErrInvalidIdentity
	}
	if req.Amount <= 0 {
		return grantdomain.GrantResult{}, grantdomain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return grantdomain.GrantResult{}, grantdomain.ErrInvalidReference
	}
	switch req.Type {
	case ledgerdomain.TransactionPurchase, ledgerdomain.TransactionBonus, ledgerdomain.TransactionRefund:
	default:
		return grantdomain.GrantResult{}, grantdomain.ErrInvalidGrantType
	}

	var result grantdomain.GrantResult
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		now := s.clock.Now()
		err := s.store.InTransaction(ctx, func(tx ledgerdomain.Store) error {
			account, err := tx.EnsureAccount(ctx, identity, now)
			if err != nil {
				return err
			}
			expectedVersion := account.Version

			account.Balance += req.Amount
			if req.Type == ledgerdomain.TransactionPurchase {
				account.LifetimePurchased += req.Amount
			}

			inserted, err := tx.AppendTransaction(ctx, &ledgerdomain.Transaction{
				Identity:     identity,
				Type:         req.Type,
				Amount:       req.Amount,
				BalanceAfter: account.Balance,
				Description:  req.Description,
				Reference:    &reference,
			})
			if err != nil {
				return err
			}
			if !inserted {
				// Duplicate reference: no-op, report the balance as-is.
				current, err := tx.GetAccount(ctx, identity)
				if err != nil {
					return err
				}
				result = grantdomain.GrantResult{NewBalance: current.Balance, Deduplicated: true}
				return nil
			}

			if err := tx.CompareAndSwapAccount(ctx, account, expectedVersion); err != nil {
				return err
			}

			result = grantdomain.GrantResult{NewBalance: account.Balance}
			return nil
		})
		if err == nil {
			if !result.Deduplicated {
				s.log.Info("credits granted",
					zap.String("identity", identity),
					zap.String("type", string(req.Type)),
					zap.Float64("amount", req.Amount),
				)
				if s.obsMetrics != nil {
					s.obsMetrics.Grants.WithLabelValues(string(req.Type)).Inc()
				}
			}
			return result, nil
		}
		if errors.Is(err, ledgerdomain.ErrConflict) {
			if s.obsMetrics != nil {
				s.obsMetrics.LedgerConflicts.Inc()
			}
			continue
		}
		return grantdomain.GrantResult{}, err
	}

	s.log.Error("grant exhausted ledger retries", zap.String("identity", identity))
	return grantdomain.GrantResult{}, grantdomain.ErrLedgerUnavailable
}
