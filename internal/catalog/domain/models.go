// Package domain contains persistence models for the pricing catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ModelPrice maps a (provider, model) pair to its cost coefficients.
type ModelPrice struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	Provider        string       `gorm:"type:text;not null;uniqueIndex:ux_model_prices_provider_model,priority:1"`
	Model           string       `gorm:"type:text;not null;uniqueIndex:ux_model_prices_provider_model,priority:2"`
	InputUnitCost   float64      `gorm:"not null"`
	OutputUnitCost  float64      `gorm:"not null"`
	CreditsPer1K    float64      `gorm:"column:credits_per_1k;not null"`
	Active          bool         `gorm:"not null"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ModelPrice) TableName() string { return "model_prices" }

// Entry is the read-side view handed to the cost estimator.
type Entry struct {
	Provider       string
	Model          string
	InputUnitCost  float64
	OutputUnitCost float64
	CreditsPer1K   float64
}

// Free reports whether operations priced by this entry cost no credits.
func (e Entry) Free() bool { return e.CreditsPer1K == 0 }
