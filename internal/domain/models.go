// Package domain provides core domain models and types.
package domain

import "time"

// Direction indicates the side of a signal or trade
type Direction int

const (
	DirectionShort Direction = -1
	DirectionFlat  Direction = 0
	DirectionLong  Direction = 1
)

// Signal represents one strategy decision for a symbol at a rebalance point.
// Signals are immutable and consumed once per rebalance.
type Signal struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"` // 0..1, relative conviction
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	BlendRatio *float64  `json:"blend_ratio,omitempty"` // optional mix of absolute/relative momentum
}

// Position represents an open portfolio position. Positions are owned
// exclusively by the backtest engine: created on open, mutated on adjust,
// destroyed on close.
type Position struct {
	Symbol       string            `json:"symbol"`
	Quantity     float64           `json:"quantity"`
	EntryPrice   float64           `json:"entry_price"` // volume-weighted across adjustments
	EntryTime    time.Time         `json:"entry_time"`
	CurrentPrice float64           `json:"current_price"`
	CurrentTime  time.Time         `json:"current_time"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MarketValue returns the position's value at the current price
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// Trade is the immutable record of a closed position, created exactly once
// per close.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	Direction  Direction `json:"direction"`
}

// PositionSnapshot captures one symbol's state inside an equity snapshot
type PositionSnapshot struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// Snapshot is the per-bar equity record. Appended every simulated bar and
// never mutated afterwards. Invariant: Cash + sum of position values equals
// PortfolioValue within 1e-6.
type Snapshot struct {
	Timestamp      time.Time                   `json:"timestamp"`
	PortfolioValue float64                     `json:"portfolio_value"`
	Cash           float64                     `json:"cash"`
	Positions      map[string]PositionSnapshot `json:"positions"`
}

// CashAllocation is the derived split of total cash into reserve tiers.
// Not persisted; recomputed on demand.
type CashAllocation struct {
	StrategicCash     float64 `json:"strategic_cash"`
	OperationalBuffer float64 `json:"operational_buffer"`
	AvailableCash     float64 `json:"available_cash"`
	TotalCash         float64 `json:"total_cash"`
}
