// Package domain contains the durable ledger records: credit accounts, the
// append-only transaction log, usage records and rate-limit windows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FreeWindow is the length of the daily free-allowance window.
const FreeWindow = 24 * time.Hour

// CreditAccount is the durable balance record, one per identity. Mutated
// exclusively through Store operations; Version backs the compare-and-swap.
type CreditAccount struct {
	Identity             string    `gorm:"primaryKey;type:text"`
	Balance              float64   `gorm:"not null;default:0"`
	LifetimePurchased    float64   `gorm:"not null;default:0"`
	LifetimeConsumed     float64   `gorm:"not null;default:0"`
	DailyFreeUsed        float64   `gorm:"not null;default:0"`
	DailyFreeWindowStart time.Time `gorm:"not null"`
	Version              int64     `gorm:"not null;default:0"`
	CreatedAt            time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditAccount) TableName() string { return "credit_accounts" }

// FreeWindowExpired reports whether the current free-allowance window has
// lapsed. The reset itself is lazy: applied on the first mutation after
// expiry, never by a background job.
func (a *CreditAccount) FreeWindowExpired(now time.Time) bool {
	return !now.Before(a.DailyFreeWindowStart.Add(FreeWindow))
}

// ResetFreeWindowIfExpired advances the window and zeroes the used counter
// when the window has lapsed. Returns true when a reset was applied.
func (a *CreditAccount) ResetFreeWindowIfExpired(now time.Time) bool {
	if !a.FreeWindowExpired(now) {
		return false
	}
	a.DailyFreeUsed = 0
	a.DailyFreeWindowStart = now.UTC()
	return true
}

// FreeRemaining returns the unspent free allowance in credit-equivalents,
// treating an expired window as fully replenished.
func (a *CreditAccount) FreeRemaining(limit float64, now time.Time) float64 {
	if a.FreeWindowExpired(now) {
		return limit
	}
	remaining := limit - a.DailyFreeUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

type TransactionType string

const (
	TransactionPurchase    TransactionType = "purchase"
	TransactionConsumption TransactionType = "consumption"
	TransactionDailyFree   TransactionType = "daily_free"
	TransactionRefund      TransactionType = "refund"
	TransactionBonus       TransactionType = "bonus"
)

// Transaction is an immutable append-only record of a balance change.
// Summing signed amounts in creation order reproduces the account balance,
// daily_free entries excluded (those touch only DailyFreeUsed).
type Transaction struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	Identity        string          `gorm:"type:text;not null;index"`
	Type            TransactionType `gorm:"type:text;not null"`
	Amount          float64         `gorm:"not null"`
	BalanceAfter    float64         `gorm:"not null"`
	Description     string          `gorm:"type:text"`
	Reference       *string         `gorm:"type:text;uniqueIndex"`
	RelatedUsageRef *string         `gorm:"type:text;index"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

type UsageStatus string

const (
	UsageCompleted UsageStatus = "completed"
	UsageFailed    UsageStatus = "failed"
	UsageTimeout   UsageStatus = "timeout"
	UsageCancelled UsageStatus = "cancelled"
)

// UsageRecord captures one metered operation attempt, keyed by the caller's
// request reference. BalanceAfter and DailyFreeRemaining snapshot the settle
// result so duplicate settlements can replay it verbatim.
type UsageRecord struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Identity           string       `gorm:"type:text;not null;index"`
	RequestRef         string       `gorm:"type:text;not null;uniqueIndex"`
	Provider           string       `gorm:"type:text;not null"`
	Model              string       `gorm:"type:text;not null"`
	PromptUnits        int64        `gorm:"not null"`
	CompletionUnits    int64        `gorm:"not null"`
	TotalUnits         int64        `gorm:"not null"`
	CreditsCharged     float64      `gorm:"not null"`
	Shortfall          float64      `gorm:"not null;default:0"`
	Status             UsageStatus  `gorm:"type:text;not null"`
	ResponseTimeMs     int64        `gorm:"not null;default:0"`
	ErrorMessage       string       `gorm:"type:text"`
	BalanceAfter       float64      `gorm:"not null"`
	DailyFreeRemaining float64      `gorm:"not null"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

type WindowScope string

const (
	ScopeHour WindowScope = "hour"
	ScopeDay  WindowScope = "day"
)

// RateWindow is a fixed-window request counter. Stale windows age out once
// WindowEnd has passed; they are never mutated after that.
type RateWindow struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Identity     string       `gorm:"type:text;not null;uniqueIndex:ux_rate_windows_identity_scope_start,priority:1"`
	Scope        WindowScope  `gorm:"type:text;not null;uniqueIndex:ux_rate_windows_identity_scope_start,priority:2"`
	WindowStart  time.Time    `gorm:"not null;uniqueIndex:ux_rate_windows_identity_scope_start,priority:3"`
	WindowEnd    time.Time    `gorm:"not null"`
	RequestCount int64        `gorm:"not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RateWindow) TableName() string { return "rate_windows" }
