// Package domain defines the consumption orchestrator contract: authorize a
// metered request, settle its actual cost, and report balances.
package domain

import (
	"context"
	"errors"
	"time"

	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/internal/ratelimit"
)

type Decision string

const (
	DecisionAuthorized                Decision = "authorized"
	DecisionDeniedRateLimit           Decision = "denied_rate_limit"
	DecisionDeniedInsufficientCredits Decision = "denied_insufficient_credits"
)

type AuthorizeRequest struct {
	Identity                 string `json:"identity"`
	Tier                     string `json:"tier"`
	Provider                 string `json:"provider"`
	Model                    string `json:"model"`
	PredictedPromptUnits     int64  `json:"predicted_prompt_units"`
	PredictedCompletionUnits int64  `json:"predicted_completion_units"`
}

// AuthDecision is a typed result, not an error: denials are expected
// outcomes the request layer renders directly.
type AuthDecision struct {
	Decision      Decision          `json:"decision"`
	FreeOperation bool              `json:"free_operation"`
	ProjectedCost float64           `json:"projected_cost"`
	Required      float64           `json:"required,omitempty"`
	Available     float64           `json:"available,omitempty"`
	Rate          *ratelimit.Status `json:"rate,omitempty"`
}

func (d AuthDecision) Authorized() bool { return d.Decision == DecisionAuthorized }

type SettleRequest struct {
	Identity        string                   `json:"identity"`
	Provider        string                   `json:"provider"`
	Model           string                   `json:"model"`
	RequestRef      string                   `json:"request_ref"`
	PromptUnits     int64                    `json:"prompt_units"`
	CompletionUnits int64                    `json:"completion_units"`
	Status          ledgerdomain.UsageStatus `json:"status"`
	ResponseTime    time.Duration            `json:"response_time"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
}

type SettleResult struct {
	NewBalance         float64 `json:"new_balance"`
	CreditsCharged     float64 `json:"credits_charged"`
	DailyFreeRemaining float64 `json:"daily_free_remaining"`
	Shortfall          float64 `json:"shortfall,omitempty"`
	Deduplicated       bool    `json:"deduplicated,omitempty"`
}

type Balance struct {
	Balance            float64 `json:"balance"`
	DailyFreeRemaining float64 `json:"daily_free_remaining"`
	LifetimePurchased  float64 `json:"lifetime_purchased"`
	LifetimeConsumed   float64 `json:"lifetime_consumed"`
}

type Service interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthDecision, error)
	Settle(ctx context.Context, req SettleRequest) (SettleResult, error)
	GetBalance(ctx context.Context, identity string) (Balance, error)
	GetRateStatus(ctx context.Context, identity, tier string) (ratelimit.Status, error)
}

var (
	ErrInvalidIdentity   = errors.New("invalid_identity")
	ErrInvalidRequestRef = errors.New("invalid_request_ref")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidUnits      = errors.New("invalid_units")
	// ErrLedgerUnavailable escalates a compare-and-swap loop that kept
	// losing races past its bounded retry budget.
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
)
