// Package seed installs the default pricing catalog on first boot.
package seed

import (
	"context"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var defaultPrices = []catalogdomain.UpsertRequest{
	{Provider: "openai", Model: "gpt-4o", InputUnitCost: 2.5, OutputUnitCost: 10, CreditsPer1K: 1, Active: true},
	{Provider: "openai", Model: "gpt-4o-mini", InputUnitCost: 0.15, OutputUnitCost: 0.6, CreditsPer1K: 0.1, Active: true},
	{Provider: "anthropic", Model: "claude-sonnet", InputUnitCost: 3, OutputUnitCost: 15, CreditsPer1K: 1.2, Active: true},
	{Provider: "anthropic", Model: "claude-haiku", InputUnitCost: 0.8, OutputUnitCost: 4, CreditsPer1K: 0.3, Active: true},
	// Zero credits_per_1k marks the free tier: no credit checks, rate limited only.
	{Provider: "local", Model: "community", InputUnitCost: 0, OutputUnitCost: 0, CreditsPer1K: 0, Active: true},
}

func Run(catalogSvc catalogdomain.Service, log *zap.Logger) error {
	ctx := context.Background()

	existing, err := catalogSvc.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, price := range defaultPrices {
		if err := catalogSvc.Upsert(ctx, price); err != nil {
			return err
		}
	}
	log.Info("seeded default pricing catalog", zap.Int("entries", len(defaultPrices)))
	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)
