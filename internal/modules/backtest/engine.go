// Package backtest implements the discrete-time portfolio simulation engine.
// The engine consumes aligned price history plus a strategy's signals,
// maintains cash/position accounting under commission, slippage and cash
// constraints, and produces an auditable result.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/internal/modules/cash"
)

// negligibleShares is the share-count epsilon below which a shrunk order is
// skipped instead of executed
const negligibleShares = 1e-4

// Config holds engine configuration
type Config struct {
	InitialCapital    float64
	CommissionRate    float64 // fraction of traded notional
	SlippageRate      float64 // adverse price adjustment per fill
	RiskFreeRate      float64
	PeriodsPerYear    float64
	BenchmarkFairness bool          // charge the benchmark the strategy's entry/exit costs
	CashManager       *cash.Manager // optional reserve policy; nil means all cash is investable
}

// Validate checks engine configuration before any simulation runs
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital %.2f must be positive", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate %.4f out of range [0, 1)", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate %.4f out of range [0, 1)", c.SlippageRate)
	}
	return nil
}

// Options carries per-run inputs that are not engine configuration
type Options struct {
	Start       *time.Time
	End         *time.Time
	RiskManager domain.RiskManager
	Benchmark   *domain.PriceSeries
}

// Engine is the simulation loop. It owns all cash/position state for the
// duration of one Run; state is reset at entry so an Engine can be reused.
type Engine struct {
	cfg Config
	log zerolog.Logger

	cash           float64
	positions      map[string]*domain.Position
	snapshots      []domain.Snapshot
	trades         []domain.Trade
	lastRebalance  *time.Time
	firstRebalance int // snapshot index of the first actual rebalance, -1 until then
	rebalances     int
	skippedOrders  int
}

// NewEngine creates a backtest engine
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}

	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run simulates the strategy over the supplied price data. Configuration
// errors surface before any bar is processed; later conditions degrade
// gracefully. Price data is never mutated.
func (e *Engine) Run(ctx context.Context, strategy domain.Strategy, priceData map[string]*domain.PriceSeries, opts Options) (*Result, error) {
	e.reset()

	if err := e.validateInputs(strategy, priceData); err != nil {
		return nil, err
	}

	timeline := intersectTimeline(priceData, opts.Start, opts.End)
	if len(timeline) == 0 {
		return nil, fmt.Errorf("price series share no bars in the requested period")
	}

	required := strategy.RequiredHistory()

	for i, t := range timeline {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e.markToMarket(priceData, t)

		if i == len(timeline)-1 {
			// Final bar: liquidate everything, then record the all-cash state
			e.liquidateAll(t)
			e.appendSnapshot(t)
			break
		}

		e.appendSnapshot(t)

		if e.shouldRebalance(strategy, priceData, t, required) {
			e.rebalance(strategy, priceData, t, required, opts.RiskManager)
		}
	}

	return e.buildResult(strategy, opts)
}

func (e *Engine) reset() {
	e.cash = e.cfg.InitialCapital
	e.positions = make(map[string]*domain.Position)
	e.snapshots = nil
	e.trades = nil
	e.lastRebalance = nil
	e.firstRebalance = -1
	e.rebalances = 0
	e.skippedOrders = 0
}

// validateInputs enforces the fail-fast preconditions. A missing safe asset
// would leave the portfolio defensively stuck in cash without warning, so it
// is a configuration defect, not a runtime condition to tolerate.
func (e *Engine) validateInputs(strategy domain.Strategy, priceData map[string]*domain.PriceSeries) error {
	if len(priceData) == 0 {
		return fmt.Errorf("no price data supplied")
	}

	required := strategy.RequiredHistory()
	for symbol, series := range priceData {
		if series == nil || series.Len() < required {
			have := 0
			if series != nil {
				have = series.Len()
			}
			return fmt.Errorf(
				"strategy %q requires %d bars of history but %q has %d; fetch price data from an earlier start date",
				strategy.Name(), required, symbol, have,
			)
		}
	}

	if safe := strategy.SafeAsset(); safe != "" {
		if _, ok := priceData[safe]; !ok {
			return fmt.Errorf("strategy %q declares safe asset %q but no price data was supplied for it", strategy.Name(), safe)
		}
	}

	return nil
}

// intersectTimeline builds the common sorted timeline across all symbols,
// optionally clipped to [start, end]
func intersectTimeline(priceData map[string]*domain.PriceSeries, start, end *time.Time) []time.Time {
	counts := make(map[int64]int)
	samples := make(map[int64]time.Time)

	for _, series := range priceData {
		for _, t := range series.Timestamps() {
			key := t.UnixNano()
			counts[key]++
			samples[key] = t
		}
	}

	timeline := make([]time.Time, 0, len(counts))
	for key, n := range counts {
		if n != len(priceData) {
			continue
		}
		t := samples[key]
		if start != nil && t.Before(*start) {
			continue
		}
		if end != nil && t.After(*end) {
			continue
		}
		timeline = append(timeline, t)
	}

	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

// markToMarket refreshes every open position to the bar's closing price
func (e *Engine) markToMarket(priceData map[string]*domain.PriceSeries, t time.Time) {
	for symbol, pos := range e.positions {
		if price, ok := priceData[symbol].CloseAt(t); ok {
			pos.CurrentPrice = price
			pos.CurrentTime = t
		}
	}
}

// heldSymbols returns open position symbols in sorted order. Iteration order
// matters: float accumulation and trade records must not depend on map order,
// or identical runs drift in the last bits.
func (e *Engine) heldSymbols() []string {
	symbols := make([]string, 0, len(e.positions))
	for symbol := range e.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (e *Engine) portfolioValue() float64 {
	value := e.cash
	for _, symbol := range e.heldSymbols() {
		value += e.positions[symbol].MarketValue()
	}
	return value
}

func (e *Engine) appendSnapshot(t time.Time) {
	positions := make(map[string]domain.PositionSnapshot, len(e.positions))
	for symbol, pos := range e.positions {
		positions[symbol] = domain.PositionSnapshot{
			Quantity: pos.Quantity,
			Price:    pos.CurrentPrice,
			Value:    pos.MarketValue(),
		}
	}

	e.snapshots = append(e.snapshots, domain.Snapshot{
		Timestamp:      t,
		PortfolioValue: e.portfolioValue(),
		Cash:           e.cash,
		Positions:      positions,
	})
}

// shouldRebalance applies the strategy's cadence, additionally gated on every
// symbol individually having accumulated the required history up to this bar.
// The gate is an index-position check, not elapsed bars, which guards against
// unequal per-symbol histories.
func (e *Engine) shouldRebalance(strategy domain.Strategy, priceData map[string]*domain.PriceSeries, t time.Time, required int) bool {
	due := e.lastRebalance == nil || strategy.ShouldRebalance(t, *e.lastRebalance)
	if !due {
		return false
	}

	for _, series := range priceData {
		idx, ok := series.IndexOf(t)
		if !ok || idx+1 < required {
			return false
		}
	}

	return true
}

// rebalance runs one full signal-to-orders cycle at bar t. Failures here are
// logged and skipped; they never abort the simulation.
func (e *Engine) rebalance(strategy domain.Strategy, priceData map[string]*domain.PriceSeries, t time.Time, required int, riskMgr domain.RiskManager) {
	windows := make(map[string]*domain.PriceSeries, len(priceData))
	for symbol, series := range priceData {
		windows[symbol] = domain.NewPriceSeries(symbol, series.Window(t, required))
	}

	signals, err := strategy.GenerateSignals(windows, t)
	if err != nil {
		e.log.Warn().Err(err).Time("bar", t).Msg("Signal generation failed, skipping rebalance")
		return
	}

	safeAsset := strategy.SafeAsset()
	var riskSignals []domain.Signal
	var safeSignal *domain.Signal
	signalsBySymbol := make(map[string]domain.Signal, len(signals))

	for _, sig := range signals {
		signalsBySymbol[sig.Symbol] = sig
		if safeAsset != "" && sig.Symbol == safeAsset {
			s := sig
			safeSignal = &s
			continue
		}
		if sig.Direction == domain.DirectionLong {
			riskSignals = append(riskSignals, sig)
		}
	}

	weights := targetWeights(riskSignals, safeSignal, strategy.PositionCount(), safeAsset)
	e.executeRebalance(weights, signalsBySymbol, priceData, t, riskMgr)

	at := t
	e.lastRebalance = &at
	e.rebalances++
	if e.firstRebalance < 0 {
		e.firstRebalance = len(e.snapshots) - 1
	}
}

// executeRebalance turns target weights into orders. Execution order
// guarantees cash is available before it is needed: positions leaving the
// target set close first, then reductions, then buys fitted to cash.
func (e *Engine) executeRebalance(weights map[string]float64, signals map[string]domain.Signal, priceData map[string]*domain.PriceSeries, t time.Time, riskMgr domain.RiskManager) {
	// 1. Close positions that are no longer targeted
	for _, symbol := range e.heldSymbols() {
		if _, targeted := weights[symbol]; !targeted {
			e.closePosition(e.positions[symbol], t)
		}
	}

	portfolioValue := e.portfolioValue()

	// 2. Compute incremental deltas against current holdings
	var reduces, buys []OrderIntent
	for symbol, weight := range weights {
		price, ok := priceData[symbol].CloseAt(t)
		if !ok || price <= 0 {
			continue
		}

		target := portfolioValue * weight
		if riskMgr != nil {
			limit := riskMgr.PositionSizeCap(signals[symbol], portfolioValue, e.positions)
			if target > limit {
				target = limit
			}
		}

		current := 0.0
		if pos, held := e.positions[symbol]; held {
			current = pos.MarketValue()
		}

		delta := target - current
		if delta < 0 {
			reduces = append(reduces, OrderIntent{Symbol: symbol, TargetValue: -delta})
		} else if delta > 0 {
			buys = append(buys, OrderIntent{Symbol: symbol, TargetValue: delta})
		}
	}

	// 3. Reductions free cash before any buy executes
	sortIntents(reduces)
	for _, intent := range reduces {
		e.reducePosition(e.positions[intent.Symbol], intent.TargetValue, t)
	}

	// 4. Buys, shrunk proportionally to fit investable cash
	available := e.cash
	if e.cfg.CashManager != nil {
		available = e.cfg.CashManager.AvailableForInvestment(e.portfolioValue(), e.cash)
	}

	sortIntents(buys)
	actual := FitOrdersToCash(buys, available, e.cfg.CommissionRate)
	for _, intent := range buys {
		e.openOrIncrease(intent.Symbol, actual[intent.Symbol], priceData, t)
	}
}

// closePosition sells the full position and records the trade
func (e *Engine) closePosition(pos *domain.Position, t time.Time) {
	execPrice := pos.CurrentPrice * (1 - e.cfg.SlippageRate)
	proceeds := pos.Quantity * execPrice
	commission := proceeds * e.cfg.CommissionRate
	e.cash += proceeds - commission

	costBasis := pos.Quantity * pos.EntryPrice
	pnl := proceeds - commission - costBasis
	pnlPct := 0.0
	if costBasis != 0 {
		pnlPct = pnl / costBasis
	}

	e.trades = append(e.trades, domain.Trade{
		Symbol:     pos.Symbol,
		EntryTime:  pos.EntryTime,
		ExitTime:   t,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  execPrice,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Direction:  domain.DirectionLong,
	})

	delete(e.positions, pos.Symbol)
}

// reducePosition sells part of a position. Cost applies only to the
// incremental share delta; no trade record until the position fully closes.
func (e *Engine) reducePosition(pos *domain.Position, sellValue float64, t time.Time) {
	if pos == nil || pos.CurrentPrice <= 0 {
		return
	}

	shares := sellValue / pos.CurrentPrice
	if shares >= pos.Quantity {
		e.closePosition(pos, t)
		return
	}
	if shares < negligibleShares {
		return
	}

	execPrice := pos.CurrentPrice * (1 - e.cfg.SlippageRate)
	proceeds := shares * execPrice
	commission := proceeds * e.cfg.CommissionRate
	e.cash += proceeds - commission
	pos.Quantity -= shares
}

// openOrIncrease buys value worth of a symbol at the slippage-adjusted price
func (e *Engine) openOrIncrease(symbol string, value float64, priceData map[string]*domain.PriceSeries, t time.Time) {
	if value <= 0 {
		return
	}

	price, ok := priceData[symbol].CloseAt(t)
	if !ok || price <= 0 {
		return
	}

	execPrice := price * (1 + e.cfg.SlippageRate)
	shares := value / execPrice
	if shares < negligibleShares {
		e.skippedOrders++
		e.log.Debug().
			Str("symbol", symbol).
			Float64("value", value).
			Time("bar", t).
			Msg("Order too small after shrink, skipping")
		return
	}

	cost := shares * execPrice
	commission := cost * e.cfg.CommissionRate
	total := cost + commission
	if total > e.cash {
		// FitOrdersToCash already sized the batch; this only trims rounding spill
		scale := e.cash / total
		shares *= scale
		cost *= scale
		commission *= scale
		total = cost + commission
		if shares < negligibleShares {
			e.skippedOrders++
			return
		}
	}

	e.cash -= total

	if pos, held := e.positions[symbol]; held {
		// Volume-weighted entry price across adjustments
		totalShares := pos.Quantity + shares
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + execPrice*shares) / totalShares
		pos.Quantity = totalShares
		pos.CurrentPrice = price
		pos.CurrentTime = t
		return
	}

	e.positions[symbol] = &domain.Position{
		Symbol:       symbol,
		Quantity:     shares,
		EntryPrice:   execPrice,
		EntryTime:    t,
		CurrentPrice: price,
		CurrentTime:  t,
	}
}

// liquidateAll closes every remaining position, crediting net-of-commission
// proceeds to cash
func (e *Engine) liquidateAll(t time.Time) {
	for _, symbol := range e.heldSymbols() {
		e.closePosition(e.positions[symbol], t)
	}
}
