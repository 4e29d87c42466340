package strategies

import (
	"fmt"
	"time"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/pkg/formulas"
)

// RSIMomentum ranks symbols by rate of change but refuses entries that are
// already overbought on RSI. Rebalances on a fixed bar-count cadence rather
// than the calendar.
type RSIMomentum struct {
	lookback      int
	rsiPeriod     int
	overbought    float64
	positionCount int
	safeAsset     string
	rebalanceDays int
}

// NewRSIMomentum creates an RSI-filtered momentum strategy from a parameter
// map.
//
// Parameters:
//   - lookback       rate-of-change lookback in bars (default 60)
//   - rsi_period     RSI period (default 14)
//   - overbought     RSI level above which entries are skipped (default 75)
//   - position_count risk positions per rebalance (default 3)
//   - safe_asset     defensive symbol, "" disables (default "")
//   - rebalance_days calendar-day cadence (default 21)
func NewRSIMomentum(params map[string]interface{}) (domain.Strategy, error) {
	lookback, err := intParam(params, "lookback", 60)
	if err != nil {
		return nil, err
	}
	rsiPeriod, err := intParam(params, "rsi_period", 14)
	if err != nil {
		return nil, err
	}
	overbought, err := floatParam(params, "overbought", 75)
	if err != nil {
		return nil, err
	}
	positionCount, err := intParam(params, "position_count", 3)
	if err != nil {
		return nil, err
	}
	safeAsset, err := stringParam(params, "safe_asset", "")
	if err != nil {
		return nil, err
	}
	rebalanceDays, err := intParam(params, "rebalance_days", 21)
	if err != nil {
		return nil, err
	}

	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be >= 1, got %d", lookback)
	}
	if rsiPeriod < 2 {
		return nil, fmt.Errorf("rsi_period must be >= 2, got %d", rsiPeriod)
	}
	if overbought <= 0 || overbought > 100 {
		return nil, fmt.Errorf("overbought must be in (0, 100], got %.2f", overbought)
	}
	if positionCount < 1 {
		return nil, fmt.Errorf("position_count must be >= 1, got %d", positionCount)
	}
	if rebalanceDays < 1 {
		return nil, fmt.Errorf("rebalance_days must be >= 1, got %d", rebalanceDays)
	}

	return &RSIMomentum{
		lookback:      lookback,
		rsiPeriod:     rsiPeriod,
		overbought:    overbought,
		positionCount: positionCount,
		safeAsset:     safeAsset,
		rebalanceDays: rebalanceDays,
	}, nil
}

// Name implements domain.Strategy
func (s *RSIMomentum) Name() string {
	return "rsi_momentum"
}

// RequiredHistory implements domain.Strategy
func (s *RSIMomentum) RequiredHistory() int {
	required := s.lookback + 1
	if s.rsiPeriod+1 > required {
		required = s.rsiPeriod + 1
	}
	return required
}

// ShouldRebalance implements domain.Strategy
func (s *RSIMomentum) ShouldRebalance(current, last time.Time) bool {
	return current.Sub(last) >= time.Duration(s.rebalanceDays)*24*time.Hour
}

// SafeAsset implements domain.Strategy
func (s *RSIMomentum) SafeAsset() string {
	return s.safeAsset
}

// PositionCount implements domain.Strategy
func (s *RSIMomentum) PositionCount() int {
	return s.positionCount
}

// GenerateSignals implements domain.Strategy
func (s *RSIMomentum) GenerateSignals(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
	type candidate struct {
		symbol string
		roc    float64
		rsi    float64
	}
	var candidates []candidate
	maxRoc := 0.0

	for symbol, series := range windows {
		if symbol == s.safeAsset {
			continue
		}
		closes := series.Closes()

		roc := formulas.RateOfChange(closes, s.lookback)
		if roc == nil || *roc <= 0 {
			continue
		}
		rsi := formulas.RSI(closes, s.rsiPeriod)
		if rsi == nil || *rsi >= s.overbought {
			continue
		}

		candidates = append(candidates, candidate{symbol: symbol, roc: *roc, rsi: *rsi})
		if *roc > maxRoc {
			maxRoc = *roc
		}
	}

	var signals []domain.Signal
	for _, c := range candidates {
		strength := 1.0
		if maxRoc > 0 {
			strength = c.roc / maxRoc
		}
		// Headroom below the overbought line feeds confidence
		confidence := (s.overbought - c.rsi) / s.overbought
		signals = append(signals, domain.Signal{
			Timestamp:  at,
			Symbol:     c.symbol,
			Direction:  domain.DirectionLong,
			Strength:   strength,
			Confidence: confidence,
			Reason:     fmt.Sprintf("roc %.2f%% over %d bars, rsi %.1f", c.roc*100, s.lookback, c.rsi),
		})
	}

	if s.safeAsset != "" {
		signals = append(signals, domain.Signal{
			Timestamp: at,
			Symbol:    s.safeAsset,
			Direction: domain.DirectionFlat,
			Strength:  1.0,
			Reason:    "defensive rotation target",
		})
	}

	return signals, nil
}
