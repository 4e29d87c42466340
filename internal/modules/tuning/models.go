// Package tuning provides the hyperparameter tuner: grid, random and
// Bayesian search over strategy parameters, plus a mode that compares the
// three under a shared budget. Every trial is one full backtest run.
package tuning

import (
	"fmt"
	"time"

	"github.com/aristath/momentum-lab/internal/modules/backtest"
)

// ParameterType identifies how a dimension is sampled
type ParameterType int

const (
	// ParameterInt is an integer dimension, either an explicit value list or
	// an inclusive [Min, Max] range
	ParameterInt ParameterType = iota
	// ParameterFloat is a continuous dimension over [Min, Max], optionally
	// sampled on a log scale
	ParameterFloat
	// ParameterCategorical is an explicit list of arbitrary values
	ParameterCategorical
)

// String returns the type name used in logs and errors
func (t ParameterType) String() string {
	switch t {
	case ParameterInt:
		return "int"
	case ParameterFloat:
		return "float"
	case ParameterCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// ParameterSpace defines one searchable dimension of the parameter space
type ParameterSpace struct {
	Name     string
	Type     ParameterType
	Values   []interface{} // explicit choices; required for categorical
	Min      float64       // range bounds, used when Values is empty
	Max      float64
	LogScale bool // sample float ranges log-uniformly
}

// IntSpace defines an integer range dimension
func IntSpace(name string, min, max int) ParameterSpace {
	return ParameterSpace{Name: name, Type: ParameterInt, Min: float64(min), Max: float64(max)}
}

// IntValues defines an integer dimension with explicit choices
func IntValues(name string, values ...int) ParameterSpace {
	vs := make([]interface{}, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return ParameterSpace{Name: name, Type: ParameterInt, Values: vs}
}

// FloatSpace defines a continuous dimension
func FloatSpace(name string, min, max float64) ParameterSpace {
	return ParameterSpace{Name: name, Type: ParameterFloat, Min: min, Max: max}
}

// LogFloatSpace defines a continuous dimension sampled log-uniformly
func LogFloatSpace(name string, min, max float64) ParameterSpace {
	return ParameterSpace{Name: name, Type: ParameterFloat, Min: min, Max: max, LogScale: true}
}

// CategoricalSpace defines a dimension with explicit arbitrary choices
func CategoricalSpace(name string, values ...interface{}) ParameterSpace {
	return ParameterSpace{Name: name, Type: ParameterCategorical, Values: values}
}

// Validate checks a single dimension definition
func (p ParameterSpace) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter space has no name")
	}
	switch p.Type {
	case ParameterCategorical:
		if len(p.Values) == 0 {
			return fmt.Errorf("categorical parameter %q needs explicit values", p.Name)
		}
	case ParameterInt, ParameterFloat:
		if len(p.Values) > 0 {
			return nil
		}
		if p.Max < p.Min {
			return fmt.Errorf("parameter %q range [%.4f, %.4f] is inverted", p.Name, p.Min, p.Max)
		}
		if p.LogScale && p.Min <= 0 {
			return fmt.Errorf("parameter %q is log-scaled but its range includes %.4f <= 0", p.Name, p.Min)
		}
	default:
		return fmt.Errorf("parameter %q has unknown type %d", p.Name, p.Type)
	}
	return nil
}

// validateSpaces checks a whole parameter space definition before any search
// starts. A bad definition is a configuration error and fails fast.
func validateSpaces(spaces []ParameterSpace) error {
	if len(spaces) == 0 {
		return fmt.Errorf("parameter space is empty")
	}
	seen := make(map[string]bool, len(spaces))
	for _, s := range spaces {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("parameter %q defined twice", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// TrialResult is one ledger row. Exactly one row is appended per trial, in
// trial order, whether the evaluation succeeded or failed.
type TrialResult struct {
	Index    int                    `json:"index"`
	Params   map[string]interface{} `json:"params"`
	Score    float64                `json:"score"`
	Err      string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Failed reports whether the trial errored
func (t TrialResult) Failed() bool {
	return t.Err != ""
}

// OptimizationResult is the outcome of one search run
type OptimizationResult struct {
	Method     string                 `json:"method"`
	Metric     string                 `json:"metric"`
	Maximize   bool                   `json:"maximize"`
	BestParams map[string]interface{} `json:"best_params"`
	BestScore  float64                `json:"best_score"`
	BestRun    *backtest.Result       `json:"-"`
	Trials     []TrialResult          `json:"trials"`
	NTrials    int                    `json:"n_trials"`
	Duration   time.Duration          `json:"duration"`
}

// MethodReport is the per-method summary produced by CompareMethods
type MethodReport struct {
	Method     string                 `json:"method"`
	BestParams map[string]interface{} `json:"best_params"`
	BestScore  float64                `json:"best_score"`
	Trials     int                    `json:"trials"`
	WallTime   time.Duration          `json:"wall_time"`
	Err        string                 `json:"error,omitempty"`
}

// ComparisonResult aggregates the per-method reports and names the overall
// winner
type ComparisonResult struct {
	Reports    []MethodReport         `json:"reports"`
	BestMethod string                 `json:"best_method"`
	BestParams map[string]interface{} `json:"best_params"`
	BestScore  float64                `json:"best_score"`
	Duration   time.Duration          `json:"duration"`
}
