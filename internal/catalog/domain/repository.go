package domain

import "context"

type Repository interface {
	FindActive(ctx context.Context, provider, model string) (*ModelPrice, error)
	Upsert(ctx context.Context, price *ModelPrice) error
	List(ctx context.Context) ([]ModelPrice, error)
}
