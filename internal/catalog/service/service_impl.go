package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  catalogdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  catalogdomain.Repository
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Lookup(ctx context.Context, provider, model string) (catalogdomain.Entry, error) {
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if provider == "" {
		return catalogdomain.Entry{}, catalogdomain.ErrInvalidProvider
	}
	if model == "" {
		return catalogdomain.Entry{}, catalogdomain.ErrInvalidModel
	}

	price, err := s.repo.FindActive(ctx, provider, model)
	if err != nil {
		return catalogdomain.Entry{}, err
	}
	if price == nil {
		return catalogdomain.Entry{}, catalogdomain.ErrUnknownModel
	}

	return catalogdomain.Entry{
		Provider:       price.Provider,
		Model:          price.Model,
		InputUnitCost:  price.InputUnitCost,
		OutputUnitCost: price.OutputUnitCost,
		CreditsPer1K:   price.CreditsPer1K,
	}, nil
}

func (s *Service) Upsert(ctx context.Context, req catalogdomain.UpsertRequest) error {
	provider := strings.TrimSpace(req.Provider)
	model := strings.TrimSpace(req.Model)
	if provider == "" {
		return catalogdomain.ErrInvalidProvider
	}
	if model == "" {
		return catalogdomain.ErrInvalidModel
	}
	if req.InputUnitCost < 0 || req.OutputUnitCost < 0 || req.CreditsPer1K < 0 {
		return catalogdomain.ErrInvalidPricing
	}

	now := time.Now().UTC()
	err := s.repo.Upsert(ctx, &catalogdomain.ModelPrice{
		ID:             s.genID.Generate(),
		Provider:       provider,
		Model:          model,
		InputUnitCost:  req.InputUnitCost,
		OutputUnitCost: req.OutputUnitCost,
		CreditsPer1K:   req.CreditsPer1K,
		Active:         req.Active,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return err
	}

	s.log.Info("catalog entry upserted",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Float64("credits_per_1k", req.CreditsPer1K),
	)
	return nil
}

func (s *Service) List(ctx context.Context) ([]catalogdomain.ModelPrice, error) {
	return s.repo.List(ctx)
}
