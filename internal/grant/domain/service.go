// Package domain defines the grant service contract: the credit-adding
// counterpart to consumption, invoked after a payment provider confirms a
// charge.
package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
)

type GrantRequest struct {
	Identity    string                       `json:"identity"`
	Amount      float64                      `json:"amount"`
	Type        ledgerdomain.TransactionType `json:"type"`
	Reference   string                       `json:"reference"`
	Description string                       `json:"description,omitempty"`
}

type GrantResult struct {
	NewBalance float64 `json:"new_balance"`
	// Deduplicated is true when the reference was already granted; the
	// original outcome stands and no credit is added twice.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

type Service interface {
	Grant(ctx context.Context, req GrantRequest) (GrantResult, error)
}

var (
	ErrInvalidIdentity  = errors.New("invalid_identity")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidGrantType = errors.New("invalid_grant_type")
	ErrInvalidReference = errors.New("invalid_reference")
	// ErrLedgerUnavailable escalates a compare-and-swap loop that kept
	// losing races past its bounded retry budget.
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
)
