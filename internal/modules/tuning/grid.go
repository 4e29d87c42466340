package tuning

import (
	"context"
	"fmt"
	"time"
)

// GridSearch enumerates the full Cartesian product of the parameter space and
// runs one trial per combination, in a stable order. Integer ranges without
// explicit values enumerate every integer in [Min, Max]; continuous float
// ranges cannot be enumerated and are a configuration error.
func (t *Tuner) GridSearch(ctx context.Context, spaces []ParameterSpace) (*OptimizationResult, error) {
	return t.gridSearch(ctx, spaces, 0)
}

// gridSearch runs grid search with an optional trial limit (0 = unlimited),
// used by CompareMethods to honor a shared budget.
func (t *Tuner) gridSearch(ctx context.Context, spaces []ParameterSpace, limit int) (*OptimizationResult, error) {
	if err := validateSpaces(spaces); err != nil {
		return nil, err
	}

	grid := make([][]interface{}, len(spaces))
	total := 1
	for i, space := range spaces {
		values, err := enumerateValues(space)
		if err != nil {
			return nil, err
		}
		grid[i] = values
		total *= len(values)
	}
	if limit > 0 && total > limit {
		total = limit
	}

	t.log.Info().
		Int("combinations", total).
		Str("metric", t.cfg.Metric).
		Msg("Starting grid search")

	res := t.newResult("grid")
	started := time.Now()

	// Odometer over the value lists, last dimension fastest
	indices := make([]int, len(spaces))
	for trial := 0; trial < total; trial++ {
		if err := checkCancelled(ctx); err != nil {
			res.Duration = time.Since(started)
			return res, err
		}

		params := make(map[string]interface{}, len(spaces))
		for i, space := range spaces {
			params[space.Name] = grid[i][indices[i]]
		}
		t.runTrial(ctx, trial, params, res)

		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(grid[i]) {
				break
			}
			indices[i] = 0
		}
	}

	res.Duration = time.Since(started)
	t.log.Info().
		Int("trials", res.NTrials).
		Float64("best_score", res.BestScore).
		Dur("elapsed", res.Duration).
		Msg("Grid search complete")
	return res, nil
}

// enumerateValues expands one dimension into its explicit value list
func enumerateValues(space ParameterSpace) ([]interface{}, error) {
	if len(space.Values) > 0 {
		return space.Values, nil
	}
	switch space.Type {
	case ParameterInt:
		lo, hi := int(space.Min), int(space.Max)
		values := make([]interface{}, 0, hi-lo+1)
		for v := lo; v <= hi; v++ {
			values = append(values, v)
		}
		return values, nil
	case ParameterFloat:
		return nil, fmt.Errorf("parameter %q: continuous float range cannot be grid-searched, provide explicit values", space.Name)
	default:
		return nil, fmt.Errorf("parameter %q: no values to enumerate", space.Name)
	}
}
