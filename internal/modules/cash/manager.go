// Package cash splits portfolio cash into a strategic reserve, an
// operational buffer, and the investable remainder.
package cash

import (
	"fmt"
	"math"

	"github.com/aristath/momentum-lab/internal/domain"
)

// Manager computes cash allocations from configured reserve percentages
type Manager struct {
	strategicPct float64
	bufferPct    float64
	minBuffer    float64
}

// NewManager creates a cash manager. Percentages must each be in [0, 1] and
// sum to at most 1.
func NewManager(strategicPct, bufferPct, minBuffer float64) (*Manager, error) {
	if strategicPct < 0 || strategicPct > 1 {
		return nil, fmt.Errorf("strategic percentage %.4f out of range [0, 1]", strategicPct)
	}
	if bufferPct < 0 || bufferPct > 1 {
		return nil, fmt.Errorf("buffer percentage %.4f out of range [0, 1]", bufferPct)
	}
	if strategicPct+bufferPct > 1.0 {
		return nil, fmt.Errorf("strategic + buffer percentages %.4f exceed 1.0", strategicPct+bufferPct)
	}
	if minBuffer < 0 {
		return nil, fmt.Errorf("minimum buffer %.2f must be non-negative", minBuffer)
	}

	return &Manager{
		strategicPct: strategicPct,
		bufferPct:    bufferPct,
		minBuffer:    minBuffer,
	}, nil
}

// CalculateAllocation derives the cash split for the current portfolio state.
// The strategic reserve and buffer scale with total portfolio value; the
// investable remainder comes out of the actual cash balance.
func (m *Manager) CalculateAllocation(totalValue, currentCash float64) domain.CashAllocation {
	strategic := totalValue * m.strategicPct
	buffer := math.Max(totalValue*m.bufferPct, m.minBuffer)
	available := math.Max(0, currentCash-strategic-buffer)

	return domain.CashAllocation{
		StrategicCash:     strategic,
		OperationalBuffer: buffer,
		AvailableCash:     available,
		TotalCash:         currentCash,
	}
}

// AvailableForInvestment returns the investable cash for the given state
func (m *Manager) AvailableForInvestment(totalValue, currentCash float64) float64 {
	return m.CalculateAllocation(totalValue, currentCash).AvailableCash
}

// ShouldRaiseCash reports whether the available cash in the allocation falls
// short of a required amount
func (m *Manager) ShouldRaiseCash(required float64, alloc domain.CashAllocation) bool {
	return alloc.AvailableCash < required
}
