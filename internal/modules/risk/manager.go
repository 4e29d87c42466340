// Package risk provides the built-in position sizing caps consulted by the
// backtest engine.
package risk

import (
	"fmt"

	"github.com/aristath/momentum-lab/internal/domain"
)

// FixedFractionManager caps every position at a fixed fraction of portfolio
// value. The simplest policy that still prevents single-name concentration.
type FixedFractionManager struct {
	maxPositionPct float64
}

// NewFixedFractionManager creates a fixed-fraction risk manager
func NewFixedFractionManager(maxPositionPct float64) (*FixedFractionManager, error) {
	if maxPositionPct <= 0 || maxPositionPct > 1 {
		return nil, fmt.Errorf("max position percentage %.4f out of range (0, 1]", maxPositionPct)
	}
	return &FixedFractionManager{maxPositionPct: maxPositionPct}, nil
}

// PositionSizeCap implements domain.RiskManager. A non-positive portfolio
// value always yields a zero cap.
func (m *FixedFractionManager) PositionSizeCap(sig domain.Signal, portfolioValue float64, positions map[string]*domain.Position) float64 {
	if portfolioValue <= 0 {
		return 0
	}
	return portfolioValue * m.maxPositionPct
}
