package tuning

import (
	"context"
	"fmt"
	"time"
)

// Method names one of the search strategies
type Method string

const (
	MethodGrid     Method = "grid"
	MethodRandom   Method = "random"
	MethodBayesian Method = "bayesian"
)

// CompareConfig configures a method comparison run
type CompareConfig struct {
	// Methods selects which searches to run; empty means all three
	Methods []Method

	// Budget is the shared per-method trial budget
	Budget int

	// NInitialPoints seeds the Bayesian search
	NInitialPoints int

	// Progress receives the fraction of total planned trials completed,
	// aggregated across all selected methods
	Progress func(fraction float64)
}

// CompareMethods runs the selected search methods over the same parameter
// space and budget, reporting per-method best score, wall time and trial
// count plus the combined winner. One method failing to start is recorded in
// its report; the others still run.
func (t *Tuner) CompareMethods(ctx context.Context, spaces []ParameterSpace, cc CompareConfig) (*ComparisonResult, error) {
	if err := validateSpaces(spaces); err != nil {
		return nil, err
	}
	if cc.Budget < 1 {
		return nil, fmt.Errorf("comparison budget must be >= 1, got %d", cc.Budget)
	}
	methods := cc.Methods
	if len(methods) == 0 {
		methods = []Method{MethodGrid, MethodRandom, MethodBayesian}
	}

	// Plan trial counts up front so progress is a fraction of a fixed total
	type plan struct {
		method Method
		trials int
		err    error
	}
	plans := make([]plan, 0, len(methods))
	total := 0
	for _, m := range methods {
		p := plan{method: m, trials: cc.Budget}
		if m == MethodGrid {
			size, err := gridSize(spaces)
			if err != nil {
				p.err = err
				p.trials = 0
			} else if size < p.trials {
				p.trials = size
			}
		}
		total += p.trials
		plans = append(plans, p)
	}
	if total == 0 {
		return nil, fmt.Errorf("no method can run over this parameter space")
	}

	t.log.Info().
		Int("methods", len(plans)).
		Int("budget", cc.Budget).
		Int("total_trials", total).
		Msg("Starting method comparison")

	done := 0
	prevHook := t.onTrial
	t.onTrial = func() {
		done++
		if cc.Progress != nil {
			cc.Progress(float64(done) / float64(total))
		}
	}
	defer func() { t.onTrial = prevHook }()

	comparison := &ComparisonResult{BestScore: t.worstScore()}
	started := time.Now()

	for _, p := range plans {
		report := MethodReport{Method: string(p.method)}
		if p.err != nil {
			report.Err = p.err.Error()
			comparison.Reports = append(comparison.Reports, report)
			continue
		}

		methodStart := time.Now()
		var res *OptimizationResult
		var err error
		switch p.method {
		case MethodGrid:
			res, err = t.gridSearch(ctx, spaces, cc.Budget)
		case MethodRandom:
			res, err = t.RandomSearch(ctx, spaces, cc.Budget)
		case MethodBayesian:
			res, err = t.BayesianSearch(ctx, spaces, cc.Budget, cc.NInitialPoints)
		default:
			err = fmt.Errorf("unknown method %q", p.method)
		}
		report.WallTime = time.Since(methodStart)

		if err != nil {
			report.Err = err.Error()
			if res != nil {
				report.Trials = res.NTrials
			}
			comparison.Reports = append(comparison.Reports, report)
			if ctx.Err() != nil {
				comparison.Duration = time.Since(started)
				return comparison, ctx.Err()
			}
			continue
		}

		report.Trials = res.NTrials
		report.BestScore = res.BestScore
		report.BestParams = res.BestParams
		comparison.Reports = append(comparison.Reports, report)

		if res.BestParams != nil && t.better(res.BestScore, comparison.BestScore) {
			comparison.BestScore = res.BestScore
			comparison.BestParams = res.BestParams
			comparison.BestMethod = string(p.method)
		}
	}

	comparison.Duration = time.Since(started)
	t.log.Info().
		Str("best_method", comparison.BestMethod).
		Float64("best_score", comparison.BestScore).
		Dur("elapsed", comparison.Duration).
		Msg("Method comparison complete")
	return comparison, nil
}

// gridSize returns the number of combinations grid search would enumerate
func gridSize(spaces []ParameterSpace) (int, error) {
	total := 1
	for _, space := range spaces {
		values, err := enumerateValues(space)
		if err != nil {
			return 0, err
		}
		total *= len(values)
	}
	return total, nil
}
