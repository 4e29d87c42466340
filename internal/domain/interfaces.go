package domain

import "time"

// Strategy is the capability the backtest engine drives. Implementations are
// stateless between rebalances: everything they need arrives in the trailing
// price window.
type Strategy interface {
	// Name returns the strategy identifier used in results and logs
	Name() string

	// RequiredHistory returns the number of warm-up bars the strategy needs
	// before it can produce signals
	RequiredHistory() int

	// ShouldRebalance decides whether to rebalance at the current bar given
	// the timestamp of the last rebalance
	ShouldRebalance(current, last time.Time) bool

	// GenerateSignals produces signals from trailing windows of width
	// RequiredHistory, one window per symbol, all ending at the current bar
	GenerateSignals(windows map[string]*PriceSeries, at time.Time) ([]Signal, error)

	// SafeAsset returns the defensive asset symbol, or "" when none is
	// configured. When set, the engine requires price data for it.
	SafeAsset() string

	// PositionCount returns the number of risk positions the strategy
	// targets per rebalance (always >= 1)
	PositionCount() int
}

// RiskManager optionally caps per-order sizing. The engine consults it before
// committing cash to a signal.
type RiskManager interface {
	// PositionSizeCap returns the maximum dollar value allowed for the
	// signal's position. Must return 0 when portfolioValue <= 0.
	PositionSizeCap(sig Signal, portfolioValue float64, positions map[string]*Position) float64
}
