package strategies

import (
	"fmt"
	"time"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/pkg/formulas"
)

// DualMomentum implements classic dual momentum rotation: rank symbols by
// trailing return (relative momentum), keep only those whose return clears an
// absolute threshold, and rotate the unfilled remainder into a defensive
// asset. An optional SMA trend filter drops symbols trading below their
// moving average.
type DualMomentum struct {
	lookback      int
	smaPeriod     int
	positionCount int
	safeAsset     string
	absThreshold  float64
	rebalanceDays int
	blendRatio    *float64
}

// NewDualMomentum creates a dual momentum strategy from a parameter map.
//
// Parameters:
//   - lookback       momentum lookback in bars (default 90)
//   - sma_period     trend filter period, 0 disables (default 0)
//   - position_count risk positions per rebalance (default 3)
//   - safe_asset     defensive symbol, "" disables (default "")
//   - abs_threshold  minimum trailing return to qualify (default 0.0)
//   - rebalance_days calendar-day cadence, 0 means monthly (default 0)
//   - blend_ratio    optional blend weight carried on signals
func NewDualMomentum(params map[string]interface{}) (domain.Strategy, error) {
	lookback, err := intParam(params, "lookback", 90)
	if err != nil {
		return nil, err
	}
	smaPeriod, err := intParam(params, "sma_period", 0)
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
	absThreshold, err := floatParam(params, "abs_threshold", 0.0)
	if err != nil {
		return nil, err
	}
	rebalanceDays, err := intParam(params, "rebalance_days", 0)
	if err != nil {
		return nil, err
	}

	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be >= 1, got %d", lookback)
	}
	if smaPeriod < 0 {
		return nil, fmt.Errorf("sma_period must be >= 0, got %d", smaPeriod)
	}
	if positionCount < 1 {
		return nil, fmt.Errorf("position_count must be >= 1, got %d", positionCount)
	}
	if rebalanceDays < 0 {
		return nil, fmt.Errorf("rebalance_days must be >= 0, got %d", rebalanceDays)
	}

	s := &DualMomentum{
		lookback:      lookback,
		smaPeriod:     smaPeriod,
		positionCount: positionCount,
		safeAsset:     safeAsset,
		absThreshold:  absThreshold,
		rebalanceDays: rebalanceDays,
	}
	if _, ok := params["blend_ratio"]; ok {
		blend, err := floatParam(params, "blend_ratio", 0)
		if err != nil {
			return nil, err
		}
		if blend < 0 || blend > 1 {
			return nil, fmt.Errorf("blend_ratio must be in [0, 1], got %.4f", blend)
		}
		s.blendRatio = &blend
	}
	return s, nil
}

// Name implements domain.Strategy
func (s *DualMomentum) Name() string {
	return "dual_momentum"
}

// RequiredHistory implements domain.Strategy. Momentum needs lookback+1
// closes; the SMA filter may need more.
func (s *DualMomentum) RequiredHistory() int {
	required := s.lookback + 1
	if s.smaPeriod > required {
		required = s.smaPeriod
	}
	return required
}

// ShouldRebalance implements domain.Strategy. Either a fixed calendar-day
// cadence or, by default, the first bar of each month.
func (s *DualMomentum) ShouldRebalance(current, last time.Time) bool {
	if s.rebalanceDays > 0 {
		return current.Sub(last) >= time.Duration(s.rebalanceDays)*24*time.Hour
	}
	return current.Month() != last.Month() || current.Year() != last.Year()
}

// SafeAsset implements domain.Strategy
func (s *DualMomentum) SafeAsset() string {
	return s.safeAsset
}

// PositionCount implements domain.Strategy
func (s *DualMomentum) PositionCount() int {
	return s.positionCount
}

// GenerateSignals implements domain.Strategy
func (s *DualMomentum) GenerateSignals(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
	var signals []domain.Signal
	maxMomentum := 0.0

	type candidate struct {
		symbol   string
		momentum float64
	}
	var candidates []candidate

	for symbol, series := range windows {
		if symbol == s.safeAsset {
			continue
		}
		closes := series.Closes()

		momentum := formulas.Momentum(closes, s.lookback)
		if momentum == nil {
			continue
		}
		// Absolute momentum filter: flat or falling symbols never qualify
		if *momentum <= s.absThreshold {
			continue
		}
		if s.smaPeriod > 0 {
			sma := formulas.SMA(closes, s.smaPeriod)
			if sma == nil || closes[len(closes)-1] < *sma {
				continue
			}
		}

		candidates = append(candidates, candidate{symbol: symbol, momentum: *momentum})
		if *momentum > maxMomentum {
			maxMomentum = *momentum
		}
	}

	for _, c := range candidates {
		strength := 1.0
		if maxMomentum > 0 {
			strength = c.momentum / maxMomentum
		}
		signals = append(signals, domain.Signal{
			Timestamp:  at,
			Symbol:     c.symbol,
			Direction:  domain.DirectionLong,
			Strength:   strength,
			Confidence: strength,
			Reason:     fmt.Sprintf("momentum %.2f%% over %d bars", c.momentum*100, s.lookback),
			BlendRatio: s.blendRatio,
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
