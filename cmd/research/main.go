// Package main is the entry point for the momentum research CLI. It runs
// single backtests, hyperparameter searches and search-method comparisons
// over a synthetic or pre-fetched price universe, and can stay resident as a
// daemon that re-optimizes on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-lab/internal/config"
	"github.com/aristath/momentum-lab/internal/database"
	"github.com/aristath/momentum-lab/internal/database/repositories"
	"github.com/aristath/momentum-lab/internal/domain"
	"github.com/aristath/momentum-lab/internal/modules/backtest"
	"github.com/aristath/momentum-lab/internal/modules/cash"
	"github.com/aristath/momentum-lab/internal/modules/risk"
	"github.com/aristath/momentum-lab/internal/modules/strategies"
	"github.com/aristath/momentum-lab/internal/modules/tuning"
	"github.com/aristath/momentum-lab/internal/scheduler"
	"github.com/aristath/momentum-lab/pkg/logger"
)

func main() {
	var (
		mode     = flag.String("mode", "backtest", "backtest | optimize | compare | daemon")
		strategy = flag.String("strategy", "dual_momentum", "registered strategy identifier")
		symbols  = flag.String("symbols", "SPY,QQQ,IWM,EFA,EEM", "comma-separated synthetic universe")
		safe     = flag.String("safe-asset", "BND", "defensive asset symbol, empty to disable")
		bars     = flag.Int("bars", 756, "bars of synthetic history per symbol")
		trials   = flag.Int("trials", 50, "trial budget for random/bayesian/compare")
		method   = flag.String("method", "bayesian", "search method for optimize mode")
		metric   = flag.String("metric", "", "objective metric, defaults from config")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if *metric != "" {
		cfg.Metric = *metric
	}

	db, err := database.New(database.Config{Path: cfg.ResultsDBPath(), Name: "results"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer db.Close()

	repo, err := repositories.NewResultsRepository(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results repository")
	}

	universe := strings.Split(*symbols, ",")
	priceData := syntheticUniverse(universe, *safe, *bars, cfg.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "backtest":
		err = runBacktest(ctx, cfg, log, repo, priceData, *strategy, *safe)
	case "optimize":
		err = runOptimize(ctx, cfg, log, repo, priceData, *strategy, *safe, *method, *trials)
	case "compare":
		err = runCompare(ctx, cfg, log, priceData, *strategy, *safe, *trials)
	case "daemon":
		err = runDaemon(ctx, cfg, log, repo, priceData, *strategy, *safe, *trials)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", *mode).Msg("Run failed")
	}
}

// engineConfig builds the backtest configuration shared by all modes. The
// cash manager keeps a 5% strategic reserve and a 2% buffer floored at 2000.
func engineConfig(cfg *config.Config) (backtest.Config, error) {
	cashMgr, err := cash.NewManager(0.05, 0.02, 2000)
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		InitialCapital:    cfg.InitialCapital,
		CommissionRate:    cfg.CommissionRate,
		SlippageRate:      cfg.SlippageRate,
		RiskFreeRate:      cfg.RiskFreeRate,
		PeriodsPerYear:    cfg.PeriodsPerYear,
		BenchmarkFairness: true,
		CashManager:       cashMgr,
	}, nil
}

func baseParams(safeAsset string) map[string]interface{} {
	params := map[string]interface{}{}
	if safeAsset != "" {
		params["safe_asset"] = safeAsset
	}
	return params
}

func runBacktest(ctx context.Context, cfg *config.Config, log zerolog.Logger, repo *repositories.ResultsRepository, priceData map[string]*domain.PriceSeries, strategyName, safeAsset string) error {
	strategy, err := strategies.Create(strategyName, baseParams(safeAsset))
	if err != nil {
		return err
	}

	engCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	engine, err := backtest.NewEngine(engCfg, log)
	if err != nil {
		return err
	}

	riskMgr, err := risk.NewFixedFractionManager(0.4)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, strategy, priceData, backtest.Options{
		RiskManager: riskMgr,
		Benchmark:   priceData["SPY"],
	})
	if err != nil {
		return err
	}

	if err := repo.SaveRun(result); err != nil {
		return err
	}

	log.Info().
		Str("run_id", result.ID).
		Str("strategy", result.StrategyName).
		Float64("final_capital", result.FinalCapital).
		Float64("total_return", result.Metrics["total_return"]).
		Float64("sharpe_ratio", result.Metrics["sharpe_ratio"]).
		Float64("max_drawdown", result.Metrics["max_drawdown"]).
		Int("trades", len(result.Trades)).
		Msg("Backtest complete")
	return nil
}

func newTuner(cfg *config.Config, log zerolog.Logger, priceData map[string]*domain.PriceSeries, strategyName, safeAsset string) (*tuning.Tuner, error) {
	engCfg, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	return tuning.NewTuner(tuning.Config{
		BaseParams: baseParams(safeAsset),
		Strategy: func(params map[string]interface{}) (domain.Strategy, error) {
			return strategies.Create(strategyName, params)
		},
		Engine:         engCfg,
		PriceData:      priceData,
		Metric:         cfg.Metric,
		Maximize:       true,
		Seed:           cfg.Seed,
		TelemetryEvery: 25,
	}, log)
}

// searchSpaces is the default parameter space for the built-in strategies
func searchSpaces(strategyName string) []tuning.ParameterSpace {
	spaces := []tuning.ParameterSpace{
		tuning.IntValues("lookback", 21, 63, 126, 189, 252),
		tuning.IntValues("position_count", 1, 2, 3, 4, 5),
	}
	switch strategyName {
	case "rsi_momentum":
		spaces = append(spaces,
			tuning.IntValues("rsi_period", 7, 14, 21),
			tuning.IntValues("overbought", 65, 70, 75, 80),
		)
	default:
		spaces = append(spaces,
			tuning.IntValues("sma_period", 0, 100, 200),
			tuning.IntValues("rebalance_days", 0, 21, 42),
		)
	}
	return spaces
}

func runOptimize(ctx context.Context, cfg *config.Config, log zerolog.Logger, repo *repositories.ResultsRepository, priceData map[string]*domain.PriceSeries, strategyName, safeAsset, method string, trials int) error {
	tuner, err := newTuner(cfg, log, priceData, strategyName, safeAsset)
	if err != nil {
		return err
	}
	spaces := searchSpaces(strategyName)

	var res *tuning.OptimizationResult
	switch tuning.Method(method) {
	case tuning.MethodGrid:
		res, err = tuner.GridSearch(ctx, spaces)
	case tuning.MethodRandom:
		res, err = tuner.RandomSearch(ctx, spaces, trials)
	case tuning.MethodBayesian:
		res, err = tuner.BayesianSearch(ctx, spaces, trials, 10)
	default:
		return fmt.Errorf("unknown search method %q", method)
	}
	if err != nil {
		return err
	}

	id, err := repo.SaveOptimization(res)
	if err != nil {
		return err
	}

	log.Info().
		Str("optimization_id", id).
		Str("method", res.Method).
		Float64("best_score", res.BestScore).
		Interface("best_params", res.BestParams).
		Int("trials", res.NTrials).
		Msg("Optimization complete")
	return nil
}

func runCompare(ctx context.Context, cfg *config.Config, log zerolog.Logger, priceData map[string]*domain.PriceSeries, strategyName, safeAsset string, trials int) error {
	tuner, err := newTuner(cfg, log, priceData, strategyName, safeAsset)
	if err != nil {
		return err
	}

	lastPct := -1
	res, err := tuner.CompareMethods(ctx, searchSpaces(strategyName), tuning.CompareConfig{
		Budget:         trials,
		NInitialPoints: 10,
		Progress: func(fraction float64) {
			pct := int(fraction * 100)
			if pct/10 > lastPct/10 {
				lastPct = pct
				log.Info().Int("pct", pct).Msg("Comparison progress")
			}
		},
	})
	if err != nil {
		return err
	}

	for _, report := range res.Reports {
		event := log.Info().
			Str("method", report.Method).
			Int("trials", report.Trials).
			Dur("wall_time", report.WallTime)
		if report.Err != "" {
			event.Str("error", report.Err).Msg("Method skipped")
			continue
		}
		event.Float64("best_score", report.BestScore).Msg("Method result")
	}

	log.Info().
		Str("best_method", res.BestMethod).
		Float64("best_score", res.BestScore).
		Interface("best_params", res.BestParams).
		Msg("Comparison complete")
	return nil
}

func runDaemon(ctx context.Context, cfg *config.Config, log zerolog.Logger, repo *repositories.ResultsRepository, priceData map[string]*domain.PriceSeries, strategyName, safeAsset string, trials int) error {
	tuner, err := newTuner(cfg, log, priceData, strategyName, safeAsset)
	if err != nil {
		return err
	}

	job, err := scheduler.NewReoptimizeJob(scheduler.ReoptimizeJobConfig{
		Method:         tuning.MethodBayesian,
		Spaces:         searchSpaces(strategyName),
		Trials:         trials,
		NInitialPoints: 10,
		Timeout:        2 * time.Hour,
	}, tuner, repo, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.DaemonSchedule, job); err != nil {
		return err
	}

	// First optimization runs immediately so the daemon is useful from the start
	if err := sched.RunNow(job); err != nil {
		log.Error().Err(err).Msg("Initial optimization failed")
	}

	sched.Start()
	defer sched.Stop()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}

// syntheticUniverse generates a deterministic geometric random walk per
// symbol. The research core assumes pre-fetched, aligned price data; this
// stands in for the external market-data fetchers.
func syntheticUniverse(symbols []string, safeAsset string, bars int, seed int64) map[string]*domain.PriceSeries {
	all := make([]string, 0, len(symbols)+1)
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			all = append(all, s)
		}
	}
	if safeAsset != "" {
		all = append(all, safeAsset)
	}
	sort.Strings(all)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	priceData := make(map[string]*domain.PriceSeries, len(all))

	for i, symbol := range all {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		drift, vol := 0.0003, 0.012
		if symbol == safeAsset {
			drift, vol = 0.0001, 0.002
		}

		price := 100.0
		series := make([]domain.Bar, bars)
		for b := 0; b < bars; b++ {
			change := drift + vol*rng.NormFloat64()
			price *= 1 + change
			series[b] = domain.Bar{
				Timestamp: start.AddDate(0, 0, b),
				Open:      price,
				High:      price * 1.005,
				Low:       price * 0.995,
				Close:     price,
				Volume:    1_000_000,
			}
		}
		priceData[symbol] = domain.NewPriceSeries(symbol, series)
	}
	return priceData
}
