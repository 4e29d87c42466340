package tuning

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/internal/modules/backtest"
)

// StrategyFactory builds a fresh strategy from a full parameter map. Every
// trial gets its own instance so no state leaks between evaluations.
type StrategyFactory func(params map[string]interface{}) (domain.Strategy, error)

// Config holds tuner configuration
type Config struct {
	// BaseParams are the fixed strategy parameters; sampled parameters are
	// merged on top for each trial
	BaseParams map[string]interface{}

	// Strategy builds the strategy under test
	Strategy StrategyFactory

	// Engine configures the backtest run shared by every trial
	Engine     backtest.Config
	EngineOpts backtest.Options

	// PriceData is read-only input shared by every trial
	PriceData map[string]*domain.PriceSeries

	// Metric is the key into the backtest metrics map used as the objective
	Metric string

	// Maximize selects the search direction
	Maximize bool

	// Seed drives the random and Bayesian samplers
	Seed int64

	// TelemetryEvery logs process cpu/memory usage every N trials; 0 disables
	TelemetryEvery int
}

// Validate checks tuner configuration before any search runs
func (c Config) Validate() error {
	if c.Strategy == nil {
		return fmt.Errorf("strategy factory is required")
	}
	if len(c.PriceData) == 0 {
		return fmt.Errorf("price data is required")
	}
	if c.Metric == "" {
		return fmt.Errorf("objective metric is required")
	}
	return c.Engine.Validate()
}

// Tuner runs hyperparameter searches. Trials execute strictly sequentially;
// each one is an independent engine run over the shared read-only price data.
type Tuner struct {
	cfg Config
	log zerolog.Logger

	// onTrial fires after every completed trial; used by CompareMethods for
	// progress aggregation
	onTrial func()
}

// NewTuner creates a tuner
func NewTuner(cfg Config, log zerolog.Logger) (*Tuner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tuner{
		cfg: cfg,
		log: log.With().Str("component", "tuning").Logger(),
	}, nil
}

// worstScore is the sentinel recorded for failed trials: the theoretically
// worst value for the chosen direction
func (t *Tuner) worstScore() float64 {
	if t.cfg.Maximize {
		return -math.MaxFloat64
	}
	return math.MaxFloat64
}

// better reports whether a beats b in the configured direction
func (t *Tuner) better(a, b float64) bool {
	if t.cfg.Maximize {
		return a > b
	}
	return a < b
}

// mergeParams overlays sampled parameters onto the base parameters
func (t *Tuner) mergeParams(params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(t.cfg.BaseParams)+len(params))
	for k, v := range t.cfg.BaseParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// Evaluate runs one trial: merge params, build a fresh strategy, run the
// engine, read the objective metric. Failures come back as errors, never
// panics; the owning search loop records them as failed ledger rows.
func (t *Tuner) Evaluate(ctx context.Context, params map[string]interface{}) (score float64, run *backtest.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = t.worstScore()
			run = nil
			err = fmt.Errorf("trial panicked: %v", r)
		}
	}()

	merged := t.mergeParams(params)

	strategy, err := t.cfg.Strategy(merged)
	if err != nil {
		return t.worstScore(), nil, fmt.Errorf("building strategy: %w", err)
	}

	engine, err := backtest.NewEngine(t.cfg.Engine, t.log)
	if err != nil {
		return t.worstScore(), nil, err
	}

	result, err := engine.Run(ctx, strategy, t.cfg.PriceData, t.cfg.EngineOpts)
	if err != nil {
		return t.worstScore(), nil, err
	}

	value, ok := result.Metrics[t.cfg.Metric]
	if !ok {
		return t.worstScore(), nil, fmt.Errorf("metric %q not produced by backtest", t.cfg.Metric)
	}
	return value, result, nil
}

// runTrial evaluates one parameter vector and appends exactly one ledger row.
// The best pointer moves only on success. Returns the recorded score.
func (t *Tuner) runTrial(ctx context.Context, index int, params map[string]interface{}, res *OptimizationResult) float64 {
	started := time.Now()
	score, run, err := t.Evaluate(ctx, params)
	elapsed := time.Since(started)

	row := TrialResult{
		Index:    index,
		Params:   params,
		Score:    score,
		Duration: elapsed,
	}
	if err != nil {
		row.Err = err.Error()
		t.log.Warn().Int("trial", index).Err(err).Msg("Trial failed")
	} else if res.BestRun == nil || t.better(score, res.BestScore) {
		res.BestScore = score
		res.BestParams = params
		res.BestRun = run
		t.log.Info().Int("trial", index).Float64("score", score).Msg("New best trial")
	}
	res.Trials = append(res.Trials, row)
	res.NTrials++

	if t.cfg.TelemetryEvery > 0 && (index+1)%t.cfg.TelemetryEvery == 0 {
		t.logResourceUsage(index + 1)
	}
	if t.onTrial != nil {
		t.onTrial()
	}
	return score
}

// newResult initializes a search result for a method
func (t *Tuner) newResult(method string) *OptimizationResult {
	return &OptimizationResult{
		Method:    method,
		Metric:    t.cfg.Metric,
		Maximize:  t.cfg.Maximize,
		BestScore: t.worstScore(),
	}
}

// checkCancelled reports a context error between trials
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
