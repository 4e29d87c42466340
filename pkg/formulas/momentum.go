package formulas

import (
	"github.com/markcheno/go-talib"
)

// Momentum calculates the total price return over the trailing period.
//
//	Momentum = (Price[now] - Price[now-period]) / Price[now-period]
//
// Returns nil if the series is too short or the base price is zero.
func Momentum(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	startPrice := closes[len(closes)-period-1]
	endPrice := closes[len(closes)-1]

	if startPrice == 0 {
		return nil
	}

	momentum := (endPrice - startPrice) / startPrice
	return &momentum
}

// RateOfChange calculates the rate-of-change indicator over the trailing
// period, as a fraction (0.05 = +5%). Uses go-talib under the hood.
func RateOfChange(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	roc := talib.Roc(closes, period)
	last := roc[len(roc)-1]
	if isNaN(last) {
		return nil
	}

	// talib reports percent; callers work in fractions
	result := last / 100.0
	return &result
}

// SMA calculates the simple moving average over the trailing period
func SMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}

	sma := talib.Sma(closes, period)
	last := sma[len(sma)-1]
	if isNaN(last) {
		return nil
	}

	return &last
}
