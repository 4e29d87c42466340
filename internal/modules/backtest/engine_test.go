package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/momentum-lab/internal/domain"
)

// stubStrategy lets tests script the engine's collaborator
type stubStrategy struct {
	name      string
	required  int
	safeAsset string
	count     int
	rebalance func(current, last time.Time) bool
	signals   func(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error)
}

func (s *stubStrategy) Name() string         { return s.name }
func (s *stubStrategy) RequiredHistory() int { return s.required }
func (s *stubStrategy) SafeAsset() string    { return s.safeAsset }
func (s *stubStrategy) PositionCount() int   { return s.count }

func (s *stubStrategy) ShouldRebalance(current, last time.Time) bool {
	if s.rebalance == nil {
		return true
	}
	return s.rebalance(current, last)
}

func (s *stubStrategy) GenerateSignals(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
	return s.signals(windows, at)
}

// trendSeries builds a daily series growing at dailyGrowth per bar
func trendSeries(symbol string, start time.Time, bars int, initial, dailyGrowth float64) *domain.PriceSeries {
	out := make([]domain.Bar, bars)
	price := initial
	for i := 0; i < bars; i++ {
		out[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000,
		}
		price *= 1 + dailyGrowth
	}
	return domain.NewPriceSeries(symbol, out)
}

// momentumSignals emits a long signal per risk symbol with strength
// proportional to window momentum, plus a full-strength safe-asset signal
// when one is configured
func momentumSignals(safeAsset string) func(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
	return func(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
		var signals []domain.Signal
		best := 0.0
		momenta := make(map[string]float64)

		for symbol, series := range windows {
			if symbol == safeAsset || series.Len() < 2 {
				continue
			}
			first := series.At(0).Close
			last := series.At(series.Len() - 1).Close
			if first <= 0 {
				continue
			}
			m := (last - first) / first
			momenta[symbol] = m
			if m > best {
				best = m
			}
		}

		for symbol, m := range momenta {
			if m <= 0 {
				continue
			}
			strength := 0.0
			if best > 0 {
				strength = m / best
			}
			signals = append(signals, domain.Signal{
				Timestamp: at,
				Symbol:    symbol,
				Direction: domain.DirectionLong,
				Strength:  strength,
				Reason:    "momentum",
			})
		}

		if safeAsset != "" {
			signals = append(signals, domain.Signal{
				Timestamp: at,
				Symbol:    safeAsset,
				Direction: domain.DirectionLong,
				Strength:  1,
				Reason:    "defensive",
			})
		}

		return signals, nil
	}
}

func monthlyRebalance(current, last time.Time) bool {
	return current.Month() != last.Month() || current.Year() != last.Year()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
		PeriodsPerYear: 252,
	}, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func TestRun_EmptyPriceData(t *testing.T) {
	engine := newTestEngine(t)
	strategy := &stubStrategy{name: "empty", required: 5, count: 1, signals: momentumSignals("")}

	_, err := engine.Run(context.Background(), strategy, map[string]*domain.PriceSeries{}, Options{})
	assert.Error(t, err)
}

func TestRun_InsufficientHistory(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{name: "hungry", required: 100, count: 1, signals: momentumSignals("")}

	data := map[string]*domain.PriceSeries{
		"AAA": trendSeries("AAA", start, 50, 100, 0.01),
	}

	_, err := engine.Run(context.Background(), strategy, data, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "earlier start date")
}

func TestRun_MissingSafeAssetFailsBeforeSimulation(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "defensive",
		required:  5,
		safeAsset: "BND",
		count:     1,
		signals:   momentumSignals("BND"),
	}

	data := map[string]*domain.PriceSeries{
		"AAA": trendSeries("AAA", start, 60, 100, 0.01),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "BND")
}

func TestRun_SnapshotAccountingInvariant(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "two-asset",
		required:  10,
		count:     2,
		rebalance: monthlyRebalance,
		signals:   momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 120, 100, 0.01),
		"SLOW": trendSeries("SLOW", start, 120, 50, 0.002),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	for _, snap := range result.Snapshots {
		total := snap.Cash
		for _, pos := range snap.Positions {
			total += pos.Quantity * pos.Price
		}
		assert.InDelta(t, snap.PortfolioValue, total, 1e-6,
			"accounting identity broken at %s", snap.Timestamp)
	}
}

func TestRun_AlwaysHoldsHigherMomentumAsset(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "top-1",
		required:  10,
		count:     1,
		rebalance: monthlyRebalance,
		signals:   momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 150, 100, 0.01),
		"SLOW": trendSeries("SLOW", start, 150, 100, 0.002),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	// After every rebalance the engine holds only the higher-momentum asset,
	// and cash never goes negative
	sawHolding := false
	for i, snap := range result.Snapshots {
		assert.GreaterOrEqual(t, snap.Cash, -1e-9, "negative cash at bar %d", i)
		if len(snap.Positions) > 0 {
			sawHolding = true
			_, holdsSlow := snap.Positions["SLOW"]
			assert.False(t, holdsSlow, "held the slower asset at %s", snap.Timestamp)
		}
	}
	assert.True(t, sawHolding)

	// All recorded trades are in the fast asset
	for _, trade := range result.Trades {
		assert.Equal(t, "FAST", trade.Symbol)
	}
}

func TestRun_FinalBarLiquidatesEverything(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "liquidator",
		required:  10,
		count:     1,
		rebalance: monthlyRebalance,
		signals:   momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 90, 100, 0.01),
		"SLOW": trendSeries("SLOW", start, 90, 100, 0.001),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	last := result.Snapshots[len(result.Snapshots)-1]
	assert.Empty(t, last.Positions)
	assert.InDelta(t, last.Cash, last.PortfolioValue, 1e-9)
	assert.InDelta(t, result.FinalCapital, last.Cash, 1e-9)
	assert.Greater(t, result.FinalCapital, result.InitialCapital,
		"upward trend with low costs should end profitable")
}

func TestRun_TrimsToFirstRebalance(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:     "warmup",
		required: 30,
		count:    1,
		signals:  momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 80, 100, 0.01),
		"SLOW": trendSeries("SLOW", start, 80, 100, 0.001),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	// Warm-up gate: no rebalance before 30 bars of per-symbol history,
	// so the reported period starts at bar 30, not bar 0
	assert.Len(t, result.Snapshots, 80)
	assert.Equal(t, start.AddDate(0, 0, 29), result.Start)
	assert.Len(t, result.EquityCurve, 80-29)
}

func TestRun_SafeAssetReceivesRemainder(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "partial-fill",
		required:  10,
		safeAsset: "BND",
		count:     3, // only one risk signal will qualify
		rebalance: monthlyRebalance,
		signals:   momentumSignals("BND"),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 90, 100, 0.01),
		"DOWN": trendSeries("DOWN", start, 90, 100, -0.005),
		"BND":  trendSeries("BND", start, 90, 80, 0.0001),
	}

	result, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	// With one risk signal out of three slots, 1/3 goes to FAST and the
	// remaining 2/3 to the safe asset
	var holdingSnap *domain.Snapshot
	for i := range result.Snapshots {
		if len(result.Snapshots[i].Positions) == 2 {
			holdingSnap = &result.Snapshots[i]
			break
		}
	}
	require.NotNil(t, holdingSnap, "expected a bar holding both FAST and BND")

	fast := holdingSnap.Positions["FAST"]
	bnd := holdingSnap.Positions["BND"]
	fastWeight := fast.Value / holdingSnap.PortfolioValue
	bndWeight := bnd.Value / holdingSnap.PortfolioValue
	assert.InDelta(t, 1.0/3.0, fastWeight, 0.02)
	assert.InDelta(t, 2.0/3.0, bndWeight, 0.02)
}

func TestRun_Deterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "repeatable",
		required:  10,
		count:     2,
		rebalance: monthlyRebalance,
		signals:   momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 120, 100, 0.008),
		"SLOW": trendSeries("SLOW", start, 120, 100, 0.003),
	}

	engine := newTestEngine(t)
	first, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	second, err := engine.Run(context.Background(), strategy, data, Options{})
	require.NoError(t, err)

	require.Equal(t, len(first.EquityCurve), len(second.EquityCurve))
	for i := range first.EquityCurve {
		assert.Equal(t, first.EquityCurve[i], second.EquityCurve[i], "equity diverged at index %d", i)
	}

	require.Equal(t, len(first.Trades), len(second.Trades))
	for i := range first.Trades {
		assert.Equal(t, first.Trades[i], second.Trades[i])
	}
}

func TestRun_CancelledContext(t *testing.T) {
	engine := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{name: "cancelled", required: 5, count: 1, signals: momentumSignals("")}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 60, 100, 0.01),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, strategy, data, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_BenchmarkCurveIndexedToStrategyNotional(t *testing.T) {
	engine, err := NewEngine(Config{
		InitialCapital:    100000,
		CommissionRate:    0.001,
		SlippageRate:      0.0005,
		PeriodsPerYear:    252,
		BenchmarkFairness: true,
	}, zerolog.Nop())
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	strategy := &stubStrategy{
		name:      "vs-benchmark",
		required:  10,
		count:     1,
		rebalance: monthlyRebalance,
		signals:   momentumSignals(""),
	}

	data := map[string]*domain.PriceSeries{
		"FAST": trendSeries("FAST", start, 90, 100, 0.01),
		"SLOW": trendSeries("SLOW", start, 90, 100, 0.001),
	}
	benchmark := trendSeries("SPY", start, 90, 400, 0.004)

	result, err := engine.Run(context.Background(), strategy, data, Options{Benchmark: benchmark})
	require.NoError(t, err)

	require.NotNil(t, result.BenchmarkCurve)
	require.Equal(t, len(result.EquityCurve), len(result.BenchmarkCurve))

	// Fairness on: the benchmark pays entry costs, so it starts slightly
	// below the strategy's first-period notional
	entryCost := 1 - engine.cfg.CommissionRate - engine.cfg.SlippageRate
	assert.InDelta(t, result.EquityCurve[0]*entryCost, result.BenchmarkCurve[0], 1e-6)
	assert.Contains(t, result.Metrics, "beta")
	assert.False(t, math.IsNaN(result.Metrics["beta"]))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{InitialCapital: 1000, CommissionRate: 0.001, SlippageRate: 0.001}},
		{name: "zero capital", cfg: Config{InitialCapital: 0}, wantErr: true},
		{name: "negative commission", cfg: Config{InitialCapital: 1000, CommissionRate: -0.1}, wantErr: true},
		{name: "slippage too high", cfg: Config{InitialCapital: 1000, SlippageRate: 1.0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
