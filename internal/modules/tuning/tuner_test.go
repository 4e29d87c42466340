package tuning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/internal/modules/backtest"
)

// stubStrategy either rotates into the rising asset or stays in cash,
// controlled by the "invest" parameter. Cheap enough to run hundreds of
// trials in a test.
type stubStrategy struct {
	invest bool
	symbol string
}

func (s *stubStrategy) Name() string         { return "stub" }
func (s *stubStrategy) RequiredHistory() int { return 5 }
func (s *stubStrategy) SafeAsset() string    { return "" }
func (s *stubStrategy) PositionCount() int   { return 1 }

func (s *stubStrategy) ShouldRebalance(current, last time.Time) bool {
	return current.Sub(last) >= 10*24*time.Hour
}

func (s *stubStrategy) GenerateSignals(windows map[string]*domain.PriceSeries, at time.Time) ([]domain.Signal, error) {
	if !s.invest {
		return nil, nil
	}
	return []domain.Signal{{
		Timestamp: at,
		Symbol:    s.symbol,
		Direction: domain.DirectionLong,
		Strength:  1.0,
	}}, nil
}

// stubFactory builds stubStrategy instances; params["explode"] simulates a
// broken region of the parameter space
func stubFactory(params map[string]interface{}) (domain.Strategy, error) {
	if v, ok := params["explode"]; ok && v == true {
		return nil, fmt.Errorf("unusable parameter combination")
	}
	symbol := "UP"
	if v, ok := params["symbol"].(string); ok {
		symbol = v
	}
	return &stubStrategy{invest: params["invest"] == "yes", symbol: symbol}, nil
}

func testSeries(symbol string, start time.Time, bars int, initial, dailyGrowth float64) *domain.PriceSeries {
	out := make([]domain.Bar, bars)
	price := initial
	for i := 0; i < bars; i++ {
		out[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    10000,
		}
		price *= dailyGrowth
	}
	return domain.NewPriceSeries(symbol, out)
}

func testPriceData() map[string]*domain.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return map[string]*domain.PriceSeries{
		"UP":   testSeries("UP", start, 40, 100, 1.01),
		"DOWN": testSeries("DOWN", start, 40, 100, 0.99),
	}
}

func newTestTuner(t *testing.T, seed int64) *Tuner {
	t.Helper()
	tuner, err := NewTuner(Config{
		BaseParams: map[string]interface{}{"invest": "yes"},
		Strategy:   stubFactory,
		Engine: backtest.Config{
			InitialCapital: 100000,
			CommissionRate: 0.001,
			SlippageRate:   0.0005,
		},
		PriceData: testPriceData(),
		Metric:    "total_return",
		Maximize:  true,
		Seed:      seed,
	}, zerolog.Nop())
	require.NoError(t, err)
	return tuner
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Strategy:  stubFactory,
		Engine:    backtest.Config{InitialCapital: 1000},
		PriceData: testPriceData(),
		Metric:    "sharpe_ratio",
	}
	assert.NoError(t, valid.Validate())

	noFactory := valid
	noFactory.Strategy = nil
	assert.Error(t, noFactory.Validate())

	noData := valid
	noData.PriceData = nil
	assert.Error(t, noData.Validate())

	noMetric := valid
	noMetric.Metric = ""
	assert.Error(t, noMetric.Validate())

	badEngine := valid
	badEngine.Engine.InitialCapital = 0
	assert.Error(t, badEngine.Validate())
}

func TestParameterSpace_Validate(t *testing.T) {
	tests := []struct {
		name    string
		space   ParameterSpace
		wantErr bool
	}{
		{"valid int range", IntSpace("lookback", 10, 100), false},
		{"valid float range", FloatSpace("threshold", 0, 0.1), false},
		{"valid categorical", CategoricalSpace("mode", "a", "b"), false},
		{"valid log scale", LogFloatSpace("rate", 0.001, 0.1), false},
		{"unnamed", ParameterSpace{Type: ParameterInt, Min: 1, Max: 2}, true},
		{"empty categorical", ParameterSpace{Name: "mode", Type: ParameterCategorical}, true},
		{"inverted range", FloatSpace("x", 5, 1), true},
		{"log scale through zero", LogFloatSpace("x", 0, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.space.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSpaces_DuplicateNames(t *testing.T) {
	err := validateSpaces([]ParameterSpace{
		IntSpace("lookback", 1, 5),
		IntValues("lookback", 10, 20),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestGridSearch_3x2SpaceRunsExactlySixTrials(t *testing.T) {
	tuner := newTestTuner(t, 1)
	spaces := []ParameterSpace{
		IntValues("x", 1, 2, 3),
		CategoricalSpace("invest", "yes", "no"),
	}

	res, err := tuner.GridSearch(context.Background(), spaces)
	require.NoError(t, err)

	assert.Equal(t, 6, res.NTrials)
	require.Len(t, res.Trials, 6)

	// Every combination appears exactly once
	seen := make(map[string]int)
	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.Index)
		key := fmt.Sprintf("%v/%v", trial.Params["x"], trial.Params["invest"])
		seen[key]++
	}
	assert.Len(t, seen, 6)
	for key, count := range seen {
		assert.Equal(t, 1, count, key)
	}

	// best_score == max over successful trial scores when maximizing
	maxScore := res.Trials[0].Score
	for _, trial := range res.Trials[1:] {
		if trial.Score > maxScore {
			maxScore = trial.Score
		}
	}
	assert.Equal(t, maxScore, res.BestScore)
	assert.Equal(t, "yes", res.BestParams["invest"])
	assert.NotNil(t, res.BestRun)
	assert.Equal(t, "grid", res.Method)
}

func TestGridSearch_IntRangeEnumeratesFully(t *testing.T) {
	tuner := newTestTuner(t, 1)

	res, err := tuner.GridSearch(context.Background(), []ParameterSpace{IntSpace("x", 1, 4)})
	require.NoError(t, err)

	require.Equal(t, 4, res.NTrials)
	for i, trial := range res.Trials {
		assert.Equal(t, i+1, trial.Params["x"])
	}
}

func TestGridSearch_ContinuousFloatIsConfigError(t *testing.T) {
	tuner := newTestTuner(t, 1)

	res, err := tuner.GridSearch(context.Background(), []ParameterSpace{FloatSpace("threshold", 0, 1)})
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestGridSearch_StableOrderAcrossRuns(t *testing.T) {
	tuner := newTestTuner(t, 1)
	spaces := []ParameterSpace{
		IntValues("x", 1, 2),
		CategoricalSpace("invest", "yes", "no"),
	}

	first, err := tuner.GridSearch(context.Background(), spaces)
	require.NoError(t, err)
	second, err := tuner.GridSearch(context.Background(), spaces)
	require.NoError(t, err)

	require.Equal(t, len(first.Trials), len(second.Trials))
	for i := range first.Trials {
		assert.Equal(t, first.Trials[i].Params, second.Trials[i].Params)
		assert.Equal(t, first.Trials[i].Score, second.Trials[i].Score)
	}
}

func TestLedger_FailedTrialsNeverDropped(t *testing.T) {
	tuner := newTestTuner(t, 1)
	spaces := []ParameterSpace{
		CategoricalSpace("explode", true, false),
		IntValues("x", 1, 2, 3),
	}

	res, err := tuner.GridSearch(context.Background(), spaces)
	require.NoError(t, err)

	require.Len(t, res.Trials, 6)
	failures := 0
	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.Index)
		if trial.Failed() {
			failures++
			assert.Equal(t, tuner.worstScore(), trial.Score)
			assert.Contains(t, trial.Err, "unusable parameter combination")
		}
	}
	assert.Equal(t, 3, failures)

	// Best pointer only ever moved on success
	assert.Equal(t, false, res.BestParams["explode"])
	assert.NotNil(t, res.BestRun)
}

func TestRandomSearch_DeterministicUnderSeed(t *testing.T) {
	spaces := []ParameterSpace{
		IntSpace("lookback", 5, 50),
		LogFloatSpace("threshold", 0.001, 0.1),
		CategoricalSpace("invest", "yes", "no"),
	}

	first, err := newTestTuner(t, 42).RandomSearch(context.Background(), spaces, 10)
	require.NoError(t, err)
	second, err := newTestTuner(t, 42).RandomSearch(context.Background(), spaces, 10)
	require.NoError(t, err)

	require.Len(t, first.Trials, 10)
	require.Len(t, second.Trials, 10)
	for i := range first.Trials {
		assert.Equal(t, first.Trials[i].Params, second.Trials[i].Params)
		assert.Equal(t, first.Trials[i].Score, second.Trials[i].Score)
	}
	assert.Equal(t, first.BestScore, second.BestScore)
}

func TestRandomSearch_SamplesStayInBounds(t *testing.T) {
	spaces := []ParameterSpace{
		IntSpace("lookback", 5, 50),
		LogFloatSpace("threshold", 0.001, 0.1),
	}

	res, err := newTestTuner(t, 7).RandomSearch(context.Background(), spaces, 25)
	require.NoError(t, err)

	for _, trial := range res.Trials {
		lookback := trial.Params["lookback"].(int)
		assert.GreaterOrEqual(t, lookback, 5)
		assert.LessOrEqual(t, lookback, 50)

		threshold := trial.Params["threshold"].(float64)
		assert.GreaterOrEqual(t, threshold, 0.001)
		assert.LessOrEqual(t, threshold, 0.1)
	}
}

func TestRandomSearch_CancelledBetweenTrials(t *testing.T) {
	tuner := newTestTuner(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := tuner.RandomSearch(ctx, []ParameterSpace{IntValues("x", 1, 2)}, 5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trials)
}

func TestBayesianSearch_FullLedgerInOrder(t *testing.T) {
	tuner := newTestTuner(t, 13)
	spaces := []ParameterSpace{
		IntSpace("lookback", 2, 10),
		CategoricalSpace("invest", "yes", "no"),
	}

	res, err := tuner.BayesianSearch(context.Background(), spaces, 12, 4)
	require.NoError(t, err)

	require.Len(t, res.Trials, 12)
	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.Index)
		assert.False(t, trial.Failed())
	}
	assert.Equal(t, "yes", res.BestParams["invest"])
	assert.Equal(t, "bayesian", res.Method)
}

func TestBayesianSearch_FailuresRecordedWithWorstScore(t *testing.T) {
	tuner := newTestTuner(t, 13)
	spaces := []ParameterSpace{
		CategoricalSpace("explode", true, false),
	}

	res, err := tuner.BayesianSearch(context.Background(), spaces, 10, 3)
	require.NoError(t, err)

	require.Len(t, res.Trials, 10)
	for _, trial := range res.Trials {
		if trial.Failed() {
			assert.Equal(t, tuner.worstScore(), trial.Score)
		}
	}
	// The surrogate steers away from the broken region after seeding
	assert.Equal(t, false, res.Trials[len(res.Trials)-1].Params["explode"])
}

func TestBayesianSearch_DeterministicUnderSeed(t *testing.T) {
	spaces := []ParameterSpace{
		IntSpace("lookback", 2, 10),
		FloatSpace("threshold", 0, 0.05),
	}

	first, err := newTestTuner(t, 99).BayesianSearch(context.Background(), spaces, 8, 3)
	require.NoError(t, err)
	second, err := newTestTuner(t, 99).BayesianSearch(context.Background(), spaces, 8, 3)
	require.NoError(t, err)

	for i := range first.Trials {
		assert.Equal(t, first.Trials[i].Params, second.Trials[i].Params)
	}
}

func TestTPESampler_RecordsOnlyProposedTrials(t *testing.T) {
	sampler := NewTPESampler([]ParameterSpace{IntSpace("x", 1, 5)}, 2, 1, true)

	params := sampler.Suggest(0)
	assert.Contains(t, params, "x")

	sampler.Record(0, 1.5)
	sampler.Record(99, 2.0) // never proposed, ignored
	assert.Len(t, sampler.observations, 1)
}

func TestCompareMethods_ReportsAndWinner(t *testing.T) {
	tuner := newTestTuner(t, 5)
	spaces := []ParameterSpace{
		IntValues("x", 1, 2, 3),
		CategoricalSpace("invest", "yes", "no"),
	}

	var fractions []float64
	res, err := tuner.CompareMethods(context.Background(), spaces, CompareConfig{
		Methods:        []Method{MethodGrid, MethodRandom},
		Budget:         4,
		NInitialPoints: 2,
		Progress:       func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	for _, report := range res.Reports {
		assert.Empty(t, report.Err)
		assert.Equal(t, 4, report.Trials)
		assert.Greater(t, report.WallTime, time.Duration(0))
	}
	assert.NotEmpty(t, res.BestMethod)
	assert.NotNil(t, res.BestParams)

	// Progress is monotone and ends at 1.0 across both methods
	require.NotEmpty(t, fractions)
	assert.IsNonDecreasing(t, fractions)
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)
	assert.Len(t, fractions, 8)
}

func TestCompareMethods_GridSkippedWhenUnenumerable(t *testing.T) {
	tuner := newTestTuner(t, 5)
	spaces := []ParameterSpace{
		FloatSpace("threshold", 0, 0.05),
		CategoricalSpace("invest", "yes", "no"),
	}

	res, err := tuner.CompareMethods(context.Background(), spaces, CompareConfig{
		Methods: []Method{MethodGrid, MethodRandom},
		Budget:  3,
	})
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	assert.NotEmpty(t, res.Reports[0].Err)
	assert.Equal(t, 0, res.Reports[0].Trials)
	assert.Equal(t, 3, res.Reports[1].Trials)
	assert.Equal(t, string(MethodRandom), res.BestMethod)
}

func TestCompareMethods_ZeroBudgetRejected(t *testing.T) {
	tuner := newTestTuner(t, 5)

	_, err := tuner.CompareMethods(context.Background(), []ParameterSpace{IntValues("x", 1)}, CompareConfig{})
	assert.Error(t, err)
}

func TestEvaluate_MetricMissing(t *testing.T) {
	tuner := newTestTuner(t, 1)
	tuner.cfg.Metric = "no_such_metric"

	score, run, err := tuner.Evaluate(context.Background(), map[string]interface{}{"invest": "yes"})
	require.Error(t, err)
	assert.Nil(t, run)
	assert.Equal(t, tuner.worstScore(), score)
}

func TestEvaluate_MergesParamsOverBase(t *testing.T) {
	tuner := newTestTuner(t, 1)

	// Base says invest, the sampled params override to stay in cash
	score, run, err := tuner.Evaluate(context.Background(), map[string]interface{}{"invest": "no"})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.InDelta(t, 0.0, score, 0.01)
}

func TestMinimizeDirection(t *testing.T) {
	tuner := newTestTuner(t, 1)
	tuner.cfg.Metric = "max_drawdown"
	tuner.cfg.Maximize = false
	tuner.cfg.BaseParams["symbol"] = "DOWN"

	res, err := tuner.GridSearch(context.Background(), []ParameterSpace{
		CategoricalSpace("invest", "yes", "no"),
	})
	require.NoError(t, err)

	// Riding the falling asset draws down; staying in cash does not
	assert.Equal(t, "no", res.BestParams["invest"])
}
