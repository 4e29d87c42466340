package tuning

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler proposes parameter vectors for sequential model-based search. Any
// conforming implementation is swappable; TPESampler is the built-in one.
type Sampler interface {
	// Suggest proposes the parameter vector for a trial
	Suggest(trialID int) map[string]interface{}

	// Record feeds the observed score back to the surrogate model
	Record(trialID int, score float64)
}

// BayesianSearch runs sequential model-based optimization with the built-in
// tree-structured Parzen estimator. The first nInitialPoints trials are pure
// random draws that seed the surrogate; failed trials are recorded with the
// worst score for the chosen direction so the model learns to avoid them.
func (t *Tuner) BayesianSearch(ctx context.Context, spaces []ParameterSpace, nTrials, nInitialPoints int) (*OptimizationResult, error) {
	if err := validateSpaces(spaces); err != nil {
		return nil, err
	}
	if nInitialPoints < 1 {
		nInitialPoints = 1
	}
	sampler := NewTPESampler(spaces, nInitialPoints, t.cfg.Seed, t.cfg.Maximize)
	return t.SearchWithSampler(ctx, sampler, nTrials, "bayesian")
}

// SearchWithSampler runs the sequential search loop against any Sampler
func (t *Tuner) SearchWithSampler(ctx context.Context, sampler Sampler, nTrials int, method string) (*OptimizationResult, error) {
	t.log.Info().
		Int("trials", nTrials).
		Int64("seed", t.cfg.Seed).
		Str("metric", t.cfg.Metric).
		Msg("Starting model-based search")

	res := t.newResult(method)
	started := time.Now()

	for trial := 0; trial < nTrials; trial++ {
		if err := checkCancelled(ctx); err != nil {
			res.Duration = time.Since(started)
			return res, err
		}
		params := sampler.Suggest(trial)
		score := t.runTrial(ctx, trial, params, res)
		sampler.Record(trial, score)
	}

	res.Duration = time.Since(started)
	t.log.Info().
		Int("trials", res.NTrials).
		Float64("best_score", res.BestScore).
		Dur("elapsed", res.Duration).
		Msg("Model-based search complete")
	return res, nil
}

type tpeObservation struct {
	params map[string]interface{}
	score  float64
}

// TPESampler is a tree-structured Parzen estimator: observations split into a
// good and a bad group at the gamma quantile, each numeric dimension gets a
// Gaussian density per group, and candidates are drawn from the good density
// and ranked by the good/bad density ratio.
type TPESampler struct {
	spaces      []ParameterSpace
	rng         *rand.Rand
	nInitial    int
	gamma       float64
	nCandidates int
	maximize    bool

	observations []tpeObservation
	proposed     map[int]map[string]interface{}
}

// NewTPESampler creates the built-in TPE sampler
func NewTPESampler(spaces []ParameterSpace, nInitialPoints int, seed int64, maximize bool) *TPESampler {
	return &TPESampler{
		spaces:      spaces,
		rng:         rand.New(rand.NewSource(seed)),
		nInitial:    nInitialPoints,
		gamma:       0.25,
		nCandidates: 24,
		maximize:    maximize,
		proposed:    make(map[int]map[string]interface{}),
	}
}

// Suggest implements Sampler
func (s *TPESampler) Suggest(trialID int) map[string]interface{} {
	var params map[string]interface{}
	if len(s.observations) < s.nInitial {
		params = sampleVector(s.spaces, s.rng)
	} else {
		good, bad := s.split()
		params = make(map[string]interface{}, len(s.spaces))
		for _, space := range s.spaces {
			params[space.Name] = s.suggestDimension(space, good, bad)
		}
	}
	s.proposed[trialID] = params
	return params
}

// Record implements Sampler
func (s *TPESampler) Record(trialID int, score float64) {
	params, ok := s.proposed[trialID]
	if !ok {
		return
	}
	delete(s.proposed, trialID)
	s.observations = append(s.observations, tpeObservation{params: params, score: score})
}

// split partitions observations at the gamma quantile, best first
func (s *TPESampler) split() (good, bad []tpeObservation) {
	sorted := make([]tpeObservation, len(s.observations))
	copy(sorted, s.observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if s.maximize {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].score < sorted[j].score
	})

	nGood := int(s.gamma * float64(len(sorted)))
	if nGood < 1 {
		nGood = 1
	}
	return sorted[:nGood], sorted[nGood:]
}

// suggestDimension proposes one dimension's value from the split
func (s *TPESampler) suggestDimension(space ParameterSpace, good, bad []tpeObservation) interface{} {
	if len(space.Values) > 0 || space.Type == ParameterCategorical {
		return s.suggestChoice(space, good, bad)
	}
	return s.suggestNumeric(space, good, bad)
}

// suggestChoice picks the explicit value with the highest smoothed good/bad
// frequency ratio
func (s *TPESampler) suggestChoice(space ParameterSpace, good, bad []tpeObservation) interface{} {
	best := space.Values[0]
	bestRatio := math.Inf(-1)
	for _, v := range space.Values {
		g := float64(countValue(good, space.Name, v)) + 1
		b := float64(countValue(bad, space.Name, v)) + 1
		ratio := (g / float64(len(good)+len(space.Values))) / (b / float64(len(bad)+len(space.Values)))
		if ratio > bestRatio {
			bestRatio = ratio
			best = v
		}
	}
	return best
}

// suggestNumeric draws candidates from the good-group Gaussian and keeps the
// one with the highest good/bad density ratio. Log-scaled dimensions are
// modeled in log space.
func (s *TPESampler) suggestNumeric(space ParameterSpace, good, bad []tpeObservation) interface{} {
	lo, hi := space.Min, space.Max
	if hi <= lo {
		return castNumeric(space, lo)
	}
	transform := func(v float64) float64 { return v }
	invert := transform
	if space.LogScale {
		transform = math.Log
		invert = math.Exp
		lo, hi = math.Log(lo), math.Log(hi)
	}

	goodDist := fitNormal(numericValues(good, space.Name, transform), lo, hi)
	badDist := fitNormal(numericValues(bad, space.Name, transform), lo, hi)

	bestValue := lo + s.rng.Float64()*(hi-lo)
	bestRatio := math.Inf(-1)
	for i := 0; i < s.nCandidates; i++ {
		// Quantile against a plain uniform draw keeps the sampler
		// deterministic under the seed
		c := goodDist.Quantile(s.rng.Float64())
		if c < lo {
			c = lo
		} else if c > hi {
			c = hi
		}
		ratio := goodDist.Prob(c) / (badDist.Prob(c) + 1e-12)
		if ratio > bestRatio {
			bestRatio = ratio
			bestValue = c
		}
	}
	return castNumeric(space, invert(bestValue))
}

// fitNormal fits a Gaussian to the group's values with a floored bandwidth
func fitNormal(values []float64, lo, hi float64) distuv.Normal {
	minSigma := (hi - lo) / 20
	if minSigma <= 0 {
		minSigma = 1e-9
	}
	if len(values) == 0 {
		return distuv.Normal{Mu: (lo + hi) / 2, Sigma: (hi - lo) / 2}
	}
	mu := stat.Mean(values, nil)
	sigma := stat.StdDev(values, nil)
	if math.IsNaN(sigma) || sigma < minSigma {
		sigma = minSigma
	}
	return distuv.Normal{Mu: mu, Sigma: sigma}
}

// numericValues extracts one dimension's numeric values from a group
func numericValues(obs []tpeObservation, name string, transform func(float64) float64) []float64 {
	var values []float64
	for _, o := range obs {
		v, ok := asFloat(o.params[name])
		if !ok {
			continue
		}
		values = append(values, transform(v))
	}
	return values
}

func countValue(obs []tpeObservation, name string, value interface{}) int {
	n := 0
	for _, o := range obs {
		if o.params[name] == value {
			n++
		}
	}
	return n
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// castNumeric converts a sampled float back to the dimension's native type
func castNumeric(space ParameterSpace, v float64) interface{} {
	if space.Type == ParameterInt {
		rounded := int(math.Round(v))
		if rounded < int(space.Min) {
			rounded = int(space.Min)
		} else if rounded > int(space.Max) {
			rounded = int(space.Max)
		}
		return rounded
	}
	return v
}
