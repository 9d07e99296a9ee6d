// Package pricing converts measured token usage into credit amounts.
package pricing

import (
	"math"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
)

// MinIncrement is the smallest chargeable credit amount. All charges round
// up to a multiple of it.
const MinIncrement = 0.01

// Usage is the unit breakdown of a metered operation, either predicted
// (pre-flight) or measured (settlement).
type Usage struct {
	PromptUnits     int64
	CompletionUnits int64
}

func (u Usage) Total() int64 { return u.PromptUnits + u.CompletionUnits }

// Estimate prices a usage sample against a catalog entry. Output units are
// typically priced higher than input units, so prompt and completion counts
// are weighted by their share of the per-unit cost rather than charged at a
// flat rate. Pure function: safe for both pre-flight estimates and
// settlements.
func Estimate(usage Usage, entry catalogdomain.Entry) float64 {
	if entry.Free() {
		return 0
	}

	inputRatio := 0.5
	if total := entry.InputUnitCost + entry.OutputUnitCost; total > 0 {
		inputRatio = entry.InputUnitCost / total
	}
	outputRatio := 1 - inputRatio

	weighted := float64(usage.PromptUnits)*inputRatio + float64(usage.CompletionUnits)*outputRatio
	credits := math.Ceil(weighted/1000*entry.CreditsPer1K*100) / 100
	if credits < 0 {
		return 0
	}
	return credits
}
