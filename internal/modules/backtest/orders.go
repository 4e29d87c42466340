package backtest

import "sort"

// OrderIntent is a desired incremental buy: the additional dollar value to
// put into a symbol at this rebalance.
type OrderIntent struct {
	Symbol      string
	TargetValue float64
}

// FitOrdersToCash scales a batch of buy intents so the total cash required,
// commission included, never exceeds the available cash. The shrink is
// proportional: every order keeps its share of the batch. Pure function; the
// caller applies the resulting values to engine state separately.
func FitOrdersToCash(desired []OrderIntent, availableCash, commissionRate float64) map[string]float64 {
	actual := make(map[string]float64, len(desired))
	if availableCash <= 0 {
		for _, intent := range desired {
			actual[intent.Symbol] = 0
		}
		return actual
	}

	required := 0.0
	for _, intent := range desired {
		if intent.TargetValue > 0 {
			required += intent.TargetValue * (1 + commissionRate)
		}
	}

	scale := 1.0
	if required > availableCash {
		scale = availableCash / required
	}

	for _, intent := range desired {
		if intent.TargetValue <= 0 {
			actual[intent.Symbol] = 0
			continue
		}
		actual[intent.Symbol] = intent.TargetValue * scale
	}

	return actual
}

// sortIntents orders intents by symbol for deterministic execution
func sortIntents(intents []OrderIntent) {
	sort.Slice(intents, func(i, j int) bool {
		return intents[i].Symbol < intents[j].Symbol
	})
}
