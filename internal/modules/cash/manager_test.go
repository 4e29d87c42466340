package cash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name      string
		strategic float64
		buffer    float64
		minBuffer float64
		wantErr   bool
	}{
		{name: "valid standard", strategic: 0.05, buffer: 0.02, minBuffer: 2000, wantErr: false},
		{name: "zero everything", strategic: 0, buffer: 0, minBuffer: 0, wantErr: false},
		{name: "strategic above one", strategic: 1.1, buffer: 0, minBuffer: 0, wantErr: true},
		{name: "negative buffer pct", strategic: 0.05, buffer: -0.1, minBuffer: 0, wantErr: true},
		{name: "sum exceeds one", strategic: 0.6, buffer: 0.5, minBuffer: 0, wantErr: true},
		{name: "negative min buffer", strategic: 0.05, buffer: 0.02, minBuffer: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.strategic, tt.buffer, tt.minBuffer)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalculateAllocation(t *testing.T) {
	m, err := NewManager(0.05, 0.02, 2000)
	require.NoError(t, err)

	alloc := m.CalculateAllocation(100000, 10000)

	// strategic = 5000, buffer = max(2000, 2000) = 2000, available = 10000 - 5000 - 2000
	assert.InDelta(t, 5000.0, alloc.StrategicCash, 1e-9)
	assert.InDelta(t, 2000.0, alloc.OperationalBuffer, 1e-9)
	assert.InDelta(t, 3000.0, alloc.AvailableCash, 1e-9)
	assert.InDelta(t, 10000.0, alloc.TotalCash, 1e-9)
}

func TestCalculateAllocation_MinBufferDominates(t *testing.T) {
	m, err := NewManager(0.05, 0.02, 5000)
	require.NoError(t, err)

	alloc := m.CalculateAllocation(100000, 10000)

	// buffer pct would give 2000 but the floor is 5000
	assert.InDelta(t, 5000.0, alloc.OperationalBuffer, 1e-9)
	assert.InDelta(t, 0.0, alloc.AvailableCash, 1e-9)
}

func TestCalculateAllocation_NeverNegative(t *testing.T) {
	m, err := NewManager(0.10, 0.05, 1000)
	require.NoError(t, err)

	// Reserves exceed the cash balance entirely
	alloc := m.CalculateAllocation(100000, 3000)
	assert.Equal(t, 0.0, alloc.AvailableCash)
}

func TestShouldRaiseCash(t *testing.T) {
	m, err := NewManager(0.05, 0.02, 2000)
	require.NoError(t, err)

	alloc := m.CalculateAllocation(100000, 10000) // available = 3000

	assert.False(t, m.ShouldRaiseCash(2500, alloc))
	assert.True(t, m.ShouldRaiseCash(3500, alloc))
}

func TestAvailableForInvestment(t *testing.T) {
	m, err := NewManager(0.05, 0.02, 2000)
	require.NoError(t, err)

	assert.InDelta(t, 3000.0, m.AvailableForInvestment(100000, 10000), 1e-9)
}
