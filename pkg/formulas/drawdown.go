package formulas

// MaxDrawdown calculates the maximum peak-to-trough loss of an equity curve.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns a positive fraction (0.25 = 25% loss from peak), 0 for short series.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// MaxDrawdownDuration returns the length, in periods, of the longest
// contiguous stretch the equity curve spent below its running maximum.
func MaxDrawdownDuration(equity []float64) int {
	if len(equity) < 2 {
		return 0
	}

	peak := equity[0]
	longest := 0
	current := 0

	for _, v := range equity {
		if v >= peak {
			peak = v
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
	}

	return longest
}
