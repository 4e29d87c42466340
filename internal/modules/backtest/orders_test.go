package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitOrdersToCash_NoShrinkWhenCashSuffices(t *testing.T) {
	desired := []OrderIntent{
		{Symbol: "A", TargetValue: 3000},
		{Symbol: "B", TargetValue: 2000},
	}

	actual := FitOrdersToCash(desired, 10000, 0.001)

	assert.InDelta(t, 3000, actual["A"], 1e-9)
	assert.InDelta(t, 2000, actual["B"], 1e-9)
}

func TestFitOrdersToCash_ProportionalShrink(t *testing.T) {
	desired := []OrderIntent{
		{Symbol: "A", TargetValue: 6000},
		{Symbol: "B", TargetValue: 4000},
	}

	actual := FitOrdersToCash(desired, 5000, 0.0)

	// Batch requires 10000 against 5000 available: halve everything
	assert.InDelta(t, 3000, actual["A"], 1e-9)
	assert.InDelta(t, 2000, actual["B"], 1e-9)
}

func TestFitOrdersToCash_CommissionCountsAgainstCash(t *testing.T) {
	desired := []OrderIntent{{Symbol: "A", TargetValue: 10000}}

	actual := FitOrdersToCash(desired, 10000, 0.01)

	// 10000 * 1.01 > 10000, so the order shrinks to fit with commission
	fitted := actual["A"]
	assert.Less(t, fitted, 10000.0)
	assert.InDelta(t, 10000.0, fitted*1.01, 1e-6)
}

func TestFitOrdersToCash_NoCash(t *testing.T) {
	desired := []OrderIntent{{Symbol: "A", TargetValue: 5000}}

	actual := FitOrdersToCash(desired, 0, 0.001)

	assert.Equal(t, 0.0, actual["A"])
}

func TestFitOrdersToCash_IgnoresNonPositiveIntents(t *testing.T) {
	desired := []OrderIntent{
		{Symbol: "A", TargetValue: 4000},
		{Symbol: "B", TargetValue: 0},
		{Symbol: "C", TargetValue: -100},
	}

	actual := FitOrdersToCash(desired, 10000, 0.0)

	assert.InDelta(t, 4000, actual["A"], 1e-9)
	assert.Equal(t, 0.0, actual["B"])
	assert.Equal(t, 0.0, actual["C"])
}
