package repository

import (
	"context"
	"errors"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) catalogdomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindActive(ctx context.Context, provider, model string) (*catalogdomain.ModelPrice, error) {
	var price catalogdomain.ModelPrice
	err := r.db.WithContext(ctx).
		Where("provider = ? AND model = ? AND active = ?", provider, model, true).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}

func (r *repository) Upsert(ctx context.Context, price *catalogdomain.ModelPrice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"input_unit_cost", "output_unit_cost", "credits_per_1k", "active", "updated_at",
		}),
	}).Create(price).Error
}

func (r *repository) List(ctx context.Context) ([]catalogdomain.ModelPrice, error) {
	var prices []catalogdomain.ModelPrice
	err := r.db.WithContext(ctx).Order("provider, model").Find(&prices).Error
	return prices, err
}
