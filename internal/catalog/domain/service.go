package domain

import (
	"context"
	"errors"
)

type UpsertRequest struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	InputUnitCost  float64 `json:"input_unit_cost"`
	OutputUnitCost float64 `json:"output_unit_cost"`
	CreditsPer1K   float64 `json:"credits_per_1k_units"`
	Active         bool    `json:"active"`
}

type Service interface {
	// Lookup resolves the active pricing entry for a provider/model pair.
	// Returns ErrUnknownModel when no active entry exists.
	Lookup(ctx context.Context, provider, model string) (Entry, error)
	// Upsert creates or replaces a catalog entry. Administrative side
	// channel, not part of the request hot path.
	Upsert(ctx context.Context, req UpsertRequest) error
	List(ctx context.Context) ([]ModelPrice, error)
}

var (
	ErrUnknownModel    = errors.New("unknown_model")
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidModel    = errors.New("invalid_model")
	ErrInvalidPricing  = errors.New("invalid_pricing")
)
