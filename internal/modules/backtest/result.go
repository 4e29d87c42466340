package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/internal/modules/performance"
)

// PositionWeight is one row of the result's allocation table
type PositionWeight struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"` // fraction of portfolio value
}

// Result is the auditable outcome of one simulation run. The equity and
// returns series are trimmed to begin at the first actual rebalance so
// performance metrics reflect the tradable period; Snapshots keeps the full
// untrimmed record.
type Result struct {
	ID             string                `json:"id"`
	StrategyName   string                `json:"strategy_name"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	InitialCapital float64               `json:"initial_capital"`
	FinalCapital   float64               `json:"final_capital"`
	Timestamps     []time.Time           `json:"timestamps"`
	EquityCurve    []float64             `json:"equity_curve"`
	Returns        []float64             `json:"returns"`
	BenchmarkCurve []float64             `json:"benchmark_curve,omitempty"`
	Trades         []domain.Trade        `json:"trades"`
	Snapshots      []domain.Snapshot     `json:"snapshots"`
	Positions      []PositionWeight      `json:"positions"`
	CashWeight     float64               `json:"cash_weight"`
	Metrics        map[string]float64    `json:"metrics"`
	Metadata       map[string]string     `json:"metadata"`
}

func (e *Engine) buildResult(strategy domain.Strategy, opts Options) (*Result, error) {
	if len(e.snapshots) == 0 {
		return nil, fmt.Errorf("simulation produced no snapshots")
	}

	// Trim to the first actual rebalance, not the data start
	start := e.firstRebalance
	if start < 0 {
		start = 0
	}
	trimmed := e.snapshots[start:]

	timestamps := make([]time.Time, len(trimmed))
	equity := make([]float64, len(trimmed))
	for i, snap := range trimmed {
		timestamps[i] = snap.Timestamp
		equity[i] = snap.PortfolioValue
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
		} else {
			returns = append(returns, 0)
		}
	}

	var benchmarkCurve []float64
	var benchmarkReturns []float64
	if opts.Benchmark != nil && len(equity) > 0 {
		benchmarkCurve = e.benchmarkCurve(opts.Benchmark, timestamps, equity[0])
		if benchmarkCurve != nil {
			benchmarkReturns = make([]float64, 0, len(benchmarkCurve)-1)
			for i := 1; i < len(benchmarkCurve); i++ {
				if benchmarkCurve[i-1] != 0 {
					benchmarkReturns = append(benchmarkReturns, (benchmarkCurve[i]-benchmarkCurve[i-1])/benchmarkCurve[i-1])
				} else {
					benchmarkReturns = append(benchmarkReturns, 0)
				}
			}
		}
	}

	var returnTimestamps []time.Time
	if len(timestamps) > 1 {
		returnTimestamps = timestamps[1:]
	}

	metrics := performance.Calculate(performance.Input{
		Returns:        returns,
		Equity:         equity,
		Timestamps:     returnTimestamps,
		Benchmark:      benchmarkReturns,
		RiskFreeRate:   e.cfg.RiskFreeRate,
		PeriodsPerYear: e.cfg.PeriodsPerYear,
	})

	positions, cashWeight := finalAllocation(e.snapshots)

	return &Result{
		ID:             uuid.New().String(),
		StrategyName:   strategy.Name(),
		Start:          timestamps[0],
		End:            timestamps[len(timestamps)-1],
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   e.cash,
		Timestamps:     timestamps,
		EquityCurve:    equity,
		Returns:        returns,
		BenchmarkCurve: benchmarkCurve,
		Trades:         e.trades,
		Snapshots:      e.snapshots,
		Positions:      positions,
		CashWeight:     cashWeight,
		Metrics:        metrics,
		Metadata: map[string]string{
			"strategy":       strategy.Name(),
			"bars":           fmt.Sprintf("%d", len(e.snapshots)),
			"rebalances":     fmt.Sprintf("%d", e.rebalances),
			"skipped_orders": fmt.Sprintf("%d", e.skippedOrders),
		},
	}, nil
}

// benchmarkCurve prices a buy-and-hold benchmark position indexed to the
// strategy's own first-period notional value. With fairness enabled the
// benchmark is charged the same entry and exit costs the strategy pays.
func (e *Engine) benchmarkCurve(benchmark *domain.PriceSeries, timestamps []time.Time, initialNotional float64) []float64 {
	if len(timestamps) == 0 {
		return nil
	}

	entryPrice, ok := benchmark.CloseAtOrBefore(timestamps[0])
	if !ok || entryPrice <= 0 {
		e.log.Warn().Str("benchmark", benchmark.Symbol).Msg("No benchmark price at simulation start, skipping benchmark series")
		return nil
	}

	costFactor := 1.0
	if e.cfg.BenchmarkFairness {
		costFactor = 1 - e.cfg.CommissionRate - e.cfg.SlippageRate
	}

	units := initialNotional * costFactor / entryPrice

	curve := make([]float64, len(timestamps))
	lastPrice := entryPrice
	for i, t := range timestamps {
		if price, found := benchmark.CloseAtOrBefore(t); found {
			lastPrice = price
		}
		curve[i] = units * lastPrice
	}

	if e.cfg.BenchmarkFairness {
		curve[len(curve)-1] *= 1 - e.cfg.CommissionRate - e.cfg.SlippageRate
	}

	return curve
}

// finalAllocation reports the portfolio composition at the last bar before
// liquidation. The very last snapshot is all cash, so the one before it is
// the holding picture worth reporting.
func finalAllocation(snapshots []domain.Snapshot) ([]PositionWeight, float64) {
	if len(snapshots) == 0 {
		return nil, 0
	}

	snap := snapshots[len(snapshots)-1]
	if len(snapshots) > 1 {
		snap = snapshots[len(snapshots)-2]
	}

	if snap.PortfolioValue == 0 {
		return nil, 0
	}

	weights := make([]PositionWeight, 0, len(snap.Positions))
	for symbol, pos := range snap.Positions {
		weights = append(weights, PositionWeight{
			Symbol: symbol,
			Value:  pos.Value,
			Weight: pos.Value / snap.PortfolioValue,
		})
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].Symbol < weights[j].Symbol })

	return weights, snap.Cash / snap.PortfolioValue
}
