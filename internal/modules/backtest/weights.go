package backtest

import (
	"sort"

	"github.com/aristath/momentum-lab/internal/domain"
)

// targetWeights turns the rebalance signals into target portfolio weights.
//
// Policy (kept exactly as the reference behaves, including the partial-fill
// tie-break): the top `desired` risk signals by strength are included. When
// fewer than `desired` qualify, the risk sleeve scales down to
// included/desired and the remainder goes to the safe asset - but only when a
// safe-asset signal was emitted; otherwise the remainder stays in cash.
// Within the risk sleeve, weights are proportional to strength clamped to
// [0, 1]; all-zero strengths split the sleeve equally.
func targetWeights(riskSignals []domain.Signal, safeSignal *domain.Signal, desired int, safeAsset string) map[string]float64 {
	if desired < 1 {
		desired = 1
	}

	ranked := make([]domain.Signal, len(riskSignals))
	copy(ranked, riskSignals)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Strength != ranked[j].Strength {
			return ranked[i].Strength > ranked[j].Strength
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	included := ranked
	if len(included) > desired {
		included = included[:desired]
	}

	riskShare := 1.0
	if len(included) < desired {
		riskShare = float64(len(included)) / float64(desired)
	}

	safeShare := 0.0
	if safeSignal != nil && len(included) < desired {
		safeShare = 1.0 - riskShare
	}

	weights := make(map[string]float64, len(included)+1)

	totalStrength := 0.0
	for _, sig := range included {
		totalStrength += clamp01(sig.Strength)
	}

	for _, sig := range included {
		if totalStrength > 0 {
			weights[sig.Symbol] = clamp01(sig.Strength) / totalStrength * riskShare
		} else {
			weights[sig.Symbol] = riskShare / float64(len(included))
		}
	}

	if safeShare > 0 && safeAsset != "" {
		weights[safeAsset] = safeShare
	}

	return weights
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
