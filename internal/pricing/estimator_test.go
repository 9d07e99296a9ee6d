package pricing

import (
	"testing"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
)

func TestEstimate_WeightsOutputHeavierThanInput(t *testing.T) {
	entry := catalogdomain.Entry{
		InputUnitCost:  2.5,
		OutputUnitCost: 10,
		CreditsPer1K:   1,
	}

	allInput := Estimate(Usage{PromptUnits: 1000, CompletionUnits: 0}, entry)
	allOutput := Estimate(Usage{PromptUnits: 0, CompletionUnits: 1000}, entry)

	// Same total unit count, different split: output-dominated requests must
	// cost more when output units are priced higher.
	assert.Greater(t, allOutput, allInput)
}

func TestEstimate_Deterministic(t *testing.T) {
	entry := catalogdomain.Entry{
		InputUnitCost:  3,
		OutputUnitCost: 15,
		CreditsPer1K:   1.2,
	}
	usage := Usage{PromptUnits: 1234, CompletionUnits: 567}

	first := Estimate(usage, entry)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Estimate(usage, entry))
	}
}

func TestEstimate_RoundsUpToMinIncrement(t *testing.T) {
	entry := catalogdomain.Entry{
		InputUnitCost:  1,
		OutputUnitCost: 1,
		CreditsPer1K:   1,
	}

	// 1 weighted unit -> 0.001 credits raw, rounds up to 0.01.
	credits := Estimate(Usage{PromptUnits: 1}, entry)
	assert.Equal(t, 0.01, credits)

	// Exact multiples stay exact: 1000 weighted units -> 1 credit.
	credits = Estimate(Usage{PromptUnits: 1000, CompletionUnits: 1000}, entry)
	assert.Equal(t, 1.0, credits)
}

func TestEstimate_FreeEntryCostsNothing(t *testing.T) {
	entry := catalogdomain.Entry{CreditsPer1K: 0}
	assert.Equal(t, 0.0, Estimate(Usage{PromptUnits: 100000, CompletionUnits: 100000}, entry))
}

func TestEstimate_ZeroUnitCostsFallBackToEqualWeighting(t *testing.T) {
	entry := catalogdomain.Entry{
		InputUnitCost:  0,
		OutputUnitCost: 0,
		CreditsPer1K:   2,
	}

	allInput := Estimate(Usage{PromptUnits: 1000}, entry)
	allOutput := Estimate(Usage{CompletionUnits: 1000}, entry)
	assert.Equal(t, allInput, allOutput)
	assert.Equal(t, 1.0, allInput)
}

func TestEstimate_ZeroUsage(t *testing.T) {
	entry := catalogdomain.Entry{
		InputUnitCost:  2.5,
		OutputUnitCost: 10,
		CreditsPer1K:   1,
	}
	assert.Equal(t, 0.0, Estimate(Usage{}, entry))
}
