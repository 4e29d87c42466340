package tuning

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RandomSearch draws nTrials parameter vectors from a seeded generator:
// uniform choice for discrete and categorical dimensions, uniform or
// log-uniform for continuous ranges. All vectors are drawn up front so the
// pseudo-random sequence is independent of evaluation timing.
func (t *Tuner) RandomSearch(ctx context.Context, spaces []ParameterSpace, nTrials int) (*OptimizationResult, error) {
	if err := validateSpaces(spaces); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	vectors := make([]map[string]interface{}, nTrials)
	for i := range vectors {
		vectors[i] = sampleVector(spaces, rng)
	}

	t.log.Info().
		Int("trials", nTrials).
		Int64("seed", t.cfg.Seed).
		Str("metric", t.cfg.Metric).
		Msg("Starting random search")

	res := t.newResult("random")
	started := time.Now()

	for trial, params := range vectors {
		if err := checkCancelled(ctx); err != nil {
			res.Duration = time.Since(started)
			return res, err
		}
		t.runTrial(ctx, trial, params, res)
	}

	res.Duration = time.Since(started)
	t.log.Info().
		Int("trials", res.NTrials).
		Float64("best_score", res.BestScore).
		Dur("elapsed", res.Duration).
		Msg("Random search complete")
	return res, nil
}

// sampleVector draws one full parameter vector
func sampleVector(spaces []ParameterSpace, rng *rand.Rand) map[string]interface{} {
	params := make(map[string]interface{}, len(spaces))
	for _, space := range spaces {
		params[space.Name] = sampleValue(space, rng)
	}
	return params
}

// sampleValue draws one value for a dimension
func sampleValue(space ParameterSpace, rng *rand.Rand) interface{} {
	if len(space.Values) > 0 {
		return space.Values[rng.Intn(len(space.Values))]
	}
	switch space.Type {
	case ParameterInt:
		lo, hi := int(space.Min), int(space.Max)
		return lo + rng.Intn(hi-lo+1)
	default:
		if space.LogScale {
			logLo, logHi := math.Log(space.Min), math.Log(space.Max)
			return math.Exp(logLo + rng.Float64()*(logHi-logLo))
		}
		return space.Min + rng.Float64()*(space.Max-space.Min)
	}
}
