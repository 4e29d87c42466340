// Package performance turns a returns/equity series into named metrics.
// It is pure post-processing: no state, no side effects.
package performance

import (
	"math"
	"time"

	"github.com/aristath/momentum-lab/pkg/formulas"
)

// Input carries the series to analyse. Benchmark is optional and, when
// present, must be aligned index-for-index with Returns. Timestamps are
// optional; without them monthly aggregates are skipped.
type Input struct {
	Returns        []float64
	Equity         []float64
	Timestamps     []time.Time
	Benchmark      []float64
	RiskFreeRate   float64
	PeriodsPerYear float64
}

// Calculate computes the full metrics map. Every ratio with a zero
// denominator yields 0.0 rather than NaN or Inf.
func Calculate(in Input) map[string]float64 {
	periodsPerYear := in.PeriodsPerYear
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}

	metrics := make(map[string]float64)

	metrics["total_return"] = totalReturn(in.Equity)
	metrics["annualized_return"] = formulas.AnnualizedReturn(in.Equity, periodsPerYear)
	metrics["annualized_volatility"] = formulas.AnnualizedVolatility(in.Returns, periodsPerYear)
	metrics["max_drawdown"] = formulas.MaxDrawdown(in.Equity)
	metrics["max_drawdown_duration"] = float64(formulas.MaxDrawdownDuration(in.Equity))
	metrics["sharpe_ratio"] = formulas.SharpeRatio(in.Returns, in.RiskFreeRate, periodsPerYear)
	metrics["sortino_ratio"] = formulas.SortinoRatio(in.Returns, in.RiskFreeRate, periodsPerYear)
	metrics["calmar_ratio"] = formulas.CalmarRatio(metrics["annualized_return"], metrics["max_drawdown"])
	metrics["win_rate"] = formulas.WinRate(in.Returns)

	best, worst := bestWorst(in.Returns)
	metrics["best_period"] = best
	metrics["worst_period"] = worst

	bestMonth, worstMonth := bestWorstMonth(in.Returns, in.Timestamps)
	metrics["best_month"] = bestMonth
	metrics["worst_month"] = worstMonth

	if len(in.Benchmark) == len(in.Returns) && len(in.Benchmark) > 1 {
		addBenchmarkMetrics(metrics, in.Returns, in.Benchmark, periodsPerYear)
	}

	return metrics
}

func totalReturn(equity []float64) float64 {
	if len(equity) < 2 || equity[0] == 0 {
		return 0
	}
	return (equity[len(equity)-1] - equity[0]) / equity[0]
}

func bestWorst(returns []float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	best := returns[0]
	worst := returns[0]
	for _, r := range returns {
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}

	return best, worst
}

// bestWorstMonth compounds per-period returns into calendar months and
// returns the extremes. Requires aligned timestamps.
func bestWorstMonth(returns []float64, timestamps []time.Time) (float64, float64) {
	if len(timestamps) != len(returns) || len(returns) == 0 {
		return 0, 0
	}

	type monthKey struct {
		year  int
		month time.Month
	}

	growth := make(map[monthKey]float64)
	order := make([]monthKey, 0)
	for i, r := range returns {
		key := monthKey{timestamps[i].Year(), timestamps[i].Month()}
		if _, ok := growth[key]; !ok {
			growth[key] = 1.0
			order = append(order, key)
		}
		growth[key] *= 1 + r
	}

	best := math.Inf(-1)
	worst := math.Inf(1)
	for _, key := range order {
		monthly := growth[key] - 1
		if monthly > best {
			best = monthly
		}
		if monthly < worst {
			worst = monthly
		}
	}

	return best, worst
}

func addBenchmarkMetrics(metrics map[string]float64, returns, benchmark []float64, periodsPerYear float64) {
	benchVar := formulas.Variance(benchmark)

	beta := 0.0
	if benchVar != 0 {
		beta = formulas.Covariance(returns, benchmark) / benchVar
	}
	metrics["beta"] = beta

	// Jensen-style alpha on periodic means, annualized
	metrics["alpha"] = (formulas.Mean(returns) - beta*formulas.Mean(benchmark)) * periodsPerYear

	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}

	trackingError := formulas.StdDev(active) * math.Sqrt(periodsPerYear)
	metrics["tracking_error"] = trackingError

	informationRatio := 0.0
	if trackingError != 0 {
		informationRatio = formulas.Mean(active) * periodsPerYear / trackingError
	}
	metrics["information_ratio"] = informationRatio

	metrics["correlation"] = formulas.Correlation(returns, benchmark)

	up, down := captureRatios(returns, benchmark)
	metrics["up_capture"] = up
	metrics["down_capture"] = down
}

// captureRatios compares compounded strategy growth to compounded benchmark
// growth over the benchmark's up and down periods separately
func captureRatios(returns, benchmark []float64) (float64, float64) {
	upStrategy, upBench := 1.0, 1.0
	downStrategy, downBench := 1.0, 1.0

	for i, b := range benchmark {
		switch {
		case b > 0:
			upStrategy *= 1 + returns[i]
			upBench *= 1 + b
		case b < 0:
			downStrategy *= 1 + returns[i]
			downBench *= 1 + b
		}
	}

	up := 0.0
	if upBench != 1.0 {
		up = (upStrategy - 1) / (upBench - 1)
	}

	down := 0.0
	if downBench != 1.0 {
		down = (downStrategy - 1) / (downBench - 1)
	}

	return up, down
}
