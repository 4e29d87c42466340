package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
//	Sharpe = (Mean Return - Periodic Risk-free Rate) / Std Dev of Returns
//	Annualized: Sharpe x sqrt(periods per year)
//
// Returns 0 when the return series has no variance (never NaN/Inf).
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return 0
	}

	periodicRiskFree := riskFreeRate / periodsPerYear
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev

	return sharpe * math.Sqrt(periodsPerYear)
}

// SortinoRatio calculates the annualized Sortino ratio, penalizing only
// downside volatility below the periodic risk-free rate.
func SortinoRatio(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}

	periodicRiskFree := riskFreeRate / periodsPerYear

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < periodicRiskFree {
			deviation := ret - periodicRiskFree
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return 0
	}

	downsideDeviation := math.Sqrt(downsideSquaredSum / float64(downsideCount))
	if downsideDeviation == 0 {
		return 0
	}

	sortino := (Mean(returns) - periodicRiskFree) / downsideDeviation

	return sortino * math.Sqrt(periodsPerYear)
}

// CalmarRatio is annualized return over maximum drawdown.
// Returns 0 when the curve never drew down.
func CalmarRatio(annualizedReturn float64, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / maxDrawdown
}

// AnnualizedReturn compounds periodic returns to a yearly rate from an equity
// curve. Returns 0 for degenerate inputs.
func AnnualizedReturn(equity []float64, periodsPerYear float64) float64 {
	if len(equity) < 2 || periodsPerYear <= 0 {
		return 0
	}
	if equity[0] <= 0 || equity[len(equity)-1] <= 0 {
		return 0
	}

	periods := float64(len(equity) - 1)
	growth := equity[len(equity)-1] / equity[0]

	return math.Pow(growth, periodsPerYear/periods) - 1
}

// WinRate is the fraction of strictly positive periodic returns.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	wins := 0
	for _, ret := range returns {
		if ret > 0 {
			wins++
		}
	}

	return float64(wins) / float64(len(returns))
}
