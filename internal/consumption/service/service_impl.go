package service

import (
	"context"
	"errors"
	"strings"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	consumptiondomain "github.com/creditrail/creditrail/internal/consumption/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	obsmetrics "github.com/creditrail/creditrail/internal/observability/metrics"
	"github.com/creditrail/creditrail/internal/pricing"
	"github.com/creditrail/creditrail/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxCASRetries bounds the settle retry loop before the conflict escalates
// as ErrLedgerUnavailable.
const maxCASRetries = 5

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      ledgerdomain.Store
	Catalog    catalogdomain.Service
	Limiter    ratelimit.Limiter
	Limits     *config.LimitsHolder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      ledgerdomain.Store
	catalog    catalogdomain.Service
	limiter    ratelimit.Limiter
	limits     *config.LimitsHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) consumptiondomain.Service {
	return &Service{
		log:        p.Log.Named("consumption.service"),
		store:      p.Store,
		catalog:    p.Catalog,
		limiter:    p.Limiter,
		limits:     p.Limits,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Authorize(ctx context.Context, req consumptiondomain.AuthorizeRequest) (consumptiondomain.AuthDecision, error) {
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return consumptiondomain.AuthDecision{}, consumptiondomain.ErrInvalidIdentity
	}
	if req.PredictedPromptUnits < 0 || req.PredictedCompletionUnits < 0 {
		return consumptiondomain.AuthDecision{}, consumptiondomain.ErrInvalidUnits
	}

	entry, err := s.catalog.Lookup(ctx, req.Provider, req.Model)
	if err != nil {
		return consumptiondomain.AuthDecision{}, err
	}

	rate, err := s.limiter.Check(ctx, identity, req.Tier)
	if err != nil {
		return consumptiondomain.AuthDecision{}, err
	}
	if !rate.Allowed {
		s.countDenial("rate_limit")
		return consumptiondomain.AuthDecision{
			Decision:      consumptiondomain.DecisionDeniedRateLimit,
			FreeOperation: entry.Free(),
			Rate:          &rate,
		}, nil
	}

	// Free-tier operations carry no credit cost: the rate check above is the
	// only gate.
	if entry.Free() {
		return consumptiondomain.AuthDecision{
			Decision:      consumptiondomain.DecisionAuthorized,
			FreeOperation: true,
			Rate:          &rate,
		}, nil
	}

	projected := pricing.Estimate(pricing.Usage{
		PromptUnits:     req.PredictedPromptUnits,
		CompletionUnits: req.PredictedCompletionUnits,
	}, entry)

	now := s.clock.Now()
	account, err := s.store.EnsureAccount(ctx, identity, now)
	if err != nil {
		return consumptiondomain.AuthDecision{}, err
	}

	limit := s.limits.Get().DailyFreeCredits
	available := account.Balance + account.FreeRemaining(limit, now)
	if available < projected {
		s.countDenial("insufficient_credits")
		return consumptiondomain.AuthDecision{
			Decision:      consumptiondomain.DecisionDeniedInsufficientCredits,
			ProjectedCost: projected,
			Required:      projected,
			Available:     available,
			Rate:          &rate,
		}, nil
	}

	return consumptiondomain.AuthDecision{
		Decision:      consumptiondomain.DecisionAuthorized,
		ProjectedCost: projected,
		Available:     available,
		Rate:          &rate,
	}, nil
}

func (s *Service) Settle(ctx context.Context, req consumptiondomain.SettleRequest) (consumptiondomain.SettleResult, error) {
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return consumptiondomain.SettleResult{}, consumptiondomain.ErrInvalidIdentity
	}
	requestRef := strings.TrimSpace(req.RequestRef)
	if requestRef == "" {
		return consumptiondomain.SettleResult{}, consumptiondomain.ErrInvalidRequestRef
	}
	if req.PromptUnits < 0 || req.CompletionUnits < 0 {
		return consumptiondomain.SettleResult{}, consumptiondomain.ErrInvalidUnits
	}
	if !validStatus(req.Status) {
		return consumptiondomain.SettleResult{}, consumptiondomain.ErrInvalidStatus
	}

	// Fast path: a retried settlement replays the stored result verbatim.
	// Checked before the catalog so a replay still succeeds when the model
	// was deactivated after the original settlement.
	if existing, err := s.store.FindUsageByRef(ctx, requestRef); err != nil {
		return consumptiondomain.SettleResult{}, err
	} else if existing != nil {
		return replayResult(existing), nil
	}

	entry, err := s.catalog.Lookup(ctx, req.Provider, req.Model)
	if err != nil {
		return consumptiondomain.SettleResult{}, err
	}

	var result consumptiondomain.SettleResult

	if entry.Free() || req.Status != ledgerdomain.UsageCompleted {
		// No debit: free-tier operations cost nothing, and a request that
		// produced no response is never charged.
		result, err = s.settleWithoutDebit(ctx, identity, requestRef, entry, req)
	} else {
		result, err = s.settleWithDebit(ctx, identity, requestRef, entry, req)
	}
	if err != nil {
		return consumptiondomain.SettleResult{}, err
	}

	if !result.Deduplicated {
		if err := s.limiter.Record(ctx, identity); err != nil {
			// The request itself settled; a lost counter tick only loosens
			// the best-effort rate bound.
			s.log.Warn("rate limiter record failed", zap.String("identity", identity), zap.Error(err))
		}
		s.countSettlement(req.Status, result.CreditsCharged)
	}

	return result, nil
}

func (s *Service) settleWithoutDebit(
	ctx context.Context,
	identity, requestRef string,
	entry catalogdomain.Entry,
	req consumptiondomain.SettleRequest,
) (consumptiondomain.SettleResult, error) {
	now := s.clock.Now()
	limit := s.limits.Get().DailyFreeCredits

	var result consumptiondomain.SettleResult
	err := s.store.InTransaction(ctx, func(tx ledgerdomain.Store) error {
		account, err := tx.EnsureAccount(ctx, identity, now)
		if err != nil {
			return err
		}

		rec := &ledgerdomain.UsageRecord{
			Identity:           identity,
			RequestRef:         requestRef,
			Provider:           entry.Provider,
			Model:              entry.Model,
			PromptUnits:        req.PromptUnits,
			CompletionUnits:    req.CompletionUnits,
			TotalUnits:         req.PromptUnits + req.CompletionUnits,
			CreditsCharged:     0,
			Status:             req.Status,
			ResponseTimeMs:     req.ResponseTime.Milliseconds(),
			ErrorMessage:       req.ErrorMessage,
			BalanceAfter:       account.Balance,
			DailyFreeRemaining: account.FreeRemaining(limit, now),
		}
		inserted, err := tx.AppendUsage(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := tx.FindUsageByRef(ctx, requestRef)
			if err != nil {
				return err
			}
			result = replayResult(existing)
			return nil
		}

		result = consumptiondomain.SettleResult{
			NewBalance:         rec.BalanceAfter,
			DailyFreeRemaining: rec.DailyFreeRemaining,
		}
		return nil
	})
	return result, err
}

// settleWithDebit performs the atomic debit: free allowance first, then paid
// balance, clamped so balance never goes negative. The whole settlement is
// one store transaction guarded by an account compare-and-swap; losing the
// swap rolls everything back and the loop retries with fresh state.
func (s *Service) settleWithDebit(
	ctx context.Context,
	identity, requestRef string,
	entry catalogdomain.Entry,
	req consumptiondomain.SettleRequest,
) (consumptiondomain.SettleResult, error) {
	cost := pricing.Estimate(pricing.Usage{
		PromptUnits:     req.PromptUnits,
		CompletionUnits: req.CompletionUnits,
	}, entry)
	limit := s.limits.Get().DailyFreeCredits

	var result consumptiondomain.SettleResult
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		now := s.clock.Now()
		err := s.store.InTransaction(ctx, func(tx ledgerdomain.Store) error {
			account, err := tx.EnsureAccount(ctx, identity, now)
			if err != nil {
				return err
			}
			expectedVersion := account.Version
			account.ResetFreeWindowIfExpired(now)

			freeDraw := minf(cost, maxf(limit-account.DailyFreeUsed, 0))
			paidDraw := minf(cost-freeDraw, account.Balance)
			shortfall := roundCredits(cost - freeDraw - paidDraw)

			account.DailyFreeUsed = roundCredits(account.DailyFreeUsed + freeDraw)
			account.Balance = roundCredits(account.Balance - paidDraw)
			account.LifetimeConsumed = roundCredits(account.LifetimeConsumed + freeDraw + paidDraw)

			rec := &ledgerdomain.UsageRecord{
				Identity:           identity,
				RequestRef:         requestRef,
				Provider:           entry.Provider,
				Model:              entry.Model,
				PromptUnits:        req.PromptUnits,
				CompletionUnits:    req.CompletionUnits,
				TotalUnits:         req.PromptUnits + req.CompletionUnits,
				CreditsCharged:     roundCredits(freeDraw + paidDraw),
				Shortfall:          shortfall,
				Status:             req.Status,
				ResponseTimeMs:     req.ResponseTime.Milliseconds(),
				BalanceAfter:       account.Balance,
				DailyFreeRemaining: maxf(limit-account.DailyFreeUsed, 0),
			}
			inserted, err := tx.AppendUsage(ctx, rec)
			if err != nil {
				return err
			}
			if !inserted {
				existing, err := tx.FindUsageByRef(ctx, requestRef)
				if err != nil {
					return err
				}
				result = replayResult(existing)
				return nil
			}

			if err := tx.CompareAndSwapAccount(ctx, account, expectedVersion); err != nil {
				return err
			}

			if freeDraw > 0 {
				if _, err := tx.AppendTransaction(ctx, &ledgerdomain.Transaction{
					Identity:        identity,
					Type:            ledgerdomain.TransactionDailyFree,
					Amount:          -roundCredits(freeDraw),
					BalanceAfter:    account.Balance,
					Description:     "daily free allowance draw",
					RelatedUsageRef: &requestRef,
				}); err != nil {
					return err
				}
			}
			if paidDraw > 0 {
				if _, err := tx.AppendTransaction(ctx, &ledgerdomain.Transaction{
					Identity:        identity,
					Type:            ledgerdomain.TransactionConsumption,
					Amount:          -roundCredits(paidDraw),
					BalanceAfter:    account.Balance,
					Description:     entry.Provider + "/" + entry.Model + " consumption",
					RelatedUsageRef: &requestRef,
				}); err != nil {
					return err
				}
			}

			if shortfall > 0 {
				s.log.Warn("settlement clamped to available funds",
					zap.String("identity", identity),
					zap.String("request_ref", requestRef),
					zap.Float64("cost", cost),
					zap.Float64("shortfall", shortfall),
				)
			}

			result = consumptiondomain.SettleResult{
				NewBalance:         rec.BalanceAfter,
				CreditsCharged:     rec.CreditsCharged,
				DailyFreeRemaining: rec.DailyFreeRemaining,
				Shortfall:          shortfall,
			}
			return nil
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ledgerdomain.ErrConflict) {
			s.countConflict()
			continue
		}
		return consumptiondomain.SettleResult{}, err
	}

	s.log.Error("settle exhausted ledger retries",
		zap.String("identity", identity),
		zap.String("request_ref", requestRef),
	)
	return consumptiondomain.SettleResult{}, consumptiondomain.ErrLedgerUnavailable
}

func (s *Service) GetBalance(ctx context.Context, identity string) (consumptiondomain.Balance, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return consumptiondomain.Balance{}, consumptiondomain.ErrInvalidIdentity
	}

	now := s.clock.Now()
	account, err := s.store.EnsureAccount(ctx, identity, now)
	if err != nil {
		return consumptiondomain.Balance{}, err
	}

	limit := s.limits.Get().DailyFreeCredits
	return consumptiondomain.Balance{
		Balance:            account.Balance,
		DailyFreeRemaining: account.FreeRemaining(limit, now),
		LifetimePurchased:  account.LifetimePurchased,
		LifetimeConsumed:   account.LifetimeConsumed,
	}, nil
}

func (s *Service) GetRateStatus(ctx context.Context, identity, tier string) (ratelimit.Status, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ratelimit.Status{}, consumptiondomain.ErrInvalidIdentity
	}
	return s.limiter.Check(ctx, identity, tier)
}

func (s *Service) countDenial(reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.Denials.WithLabelValues(reason).Inc()
	}
}

func (s *Service) countSettlement(status ledgerdomain.UsageStatus, charged float64) {
	if s.obsMetrics != nil {
		s.obsMetrics.Settlements.WithLabelValues(string(status)).Inc()
		if charged > 0 {
			s.obsMetrics.CreditsCharged.Add(charged)
		}
	}
}

func (s *Service) countConflict() {
	if s.obsMetrics != nil {
		s.obsMetrics.LedgerConflicts.Inc()
	}
}

func replayResult(rec *ledgerdomain.UsageRecord) consumptiondomain.SettleResult {
	return consumptiondomain.SettleResult{
		NewBalance:         rec.BalanceAfter,
		CreditsCharged:     rec.CreditsCharged,
		DailyFreeRemaining: rec.DailyFreeRemaining,
		Shortfall:          rec.Shortfall,
		Deduplicated:       true,
	}
}

func validStatus(status ledgerdomain.UsageStatus) bool {
	switch status {
	case ledgerdomain.UsageCompleted, ledgerdomain.UsageFailed, ledgerdomain.UsageTimeout, ledgerdomain.UsageCancelled:
		return true
	default:
		return false
	}
}

// roundCredits snaps to the minimum charge increment, absorbing float drift
// from repeated adds.
func roundCredits(v float64) float64 {
	rounded := float64(int64(v/pricing.MinIncrement+0.5)) * pricing.MinIncrement
	if rounded < 0 && rounded > -pricing.MinIncrement/2 {
		return 0
	}
	return rounded
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
