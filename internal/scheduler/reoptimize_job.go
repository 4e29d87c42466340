package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-lab/internal/modules/tuning"
)

// OptimizationSaver persists finished search runs
type OptimizationSaver interface {
	SaveOptimization(res *tuning.OptimizationResult) (string, error)
}

// ReoptimizeJobConfig configures a scheduled re-optimization
type ReoptimizeJobConfig struct {
	Method         tuning.Method
	Spaces         []tuning.ParameterSpace
	Trials         int
	NInitialPoints int
	Timeout        time.Duration // 0 means no deadline
}

// ReoptimizeJob re-runs a hyperparameter search on a schedule and persists
// the outcome. Daemon mode registers one of these per tracked strategy.
type ReoptimizeJob struct {
	cfg   ReoptimizeJobConfig
	tuner *tuning.Tuner
	saver OptimizationSaver
	log   zerolog.Logger
}

// NewReoptimizeJob creates a re-optimization job
func NewReoptimizeJob(cfg ReoptimizeJobConfig, tuner *tuning.Tuner, saver OptimizationSaver, log zerolog.Logger) (*ReoptimizeJob, error) {
	if tuner == nil {
		return nil, fmt.Errorf("tuner is required")
	}
	if cfg.Trials < 1 {
		return nil, fmt.Errorf("trials must be >= 1, got %d", cfg.Trials)
	}
	if cfg.Method == "" {
		cfg.Method = tuning.MethodBayesian
	}
	return &ReoptimizeJob{
		cfg:   cfg,
		tuner: tuner,
		saver: saver,
		log:   log.With().Str("component", "reoptimize_job").Logger(),
	}, nil
}

// Name implements Job
func (j *ReoptimizeJob) Name() string {
	return "reoptimize_" + string(j.cfg.Method)
}

// Run implements Job
func (j *ReoptimizeJob) Run() error {
	ctx := context.Background()
	if j.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
	}

	var (
		res *tuning.OptimizationResult
		err error
	)
	switch j.cfg.Method {
	case tuning.MethodGrid:
		res, err = j.tuner.GridSearch(ctx, j.cfg.Spaces)
	case tuning.MethodRandom:
		res, err = j.tuner.RandomSearch(ctx, j.cfg.Spaces, j.cfg.Trials)
	case tuning.MethodBayesian:
		res, err = j.tuner.BayesianSearch(ctx, j.cfg.Spaces, j.cfg.Trials, j.cfg.NInitialPoints)
	default:
		return fmt.Errorf("unknown search method %q", j.cfg.Method)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if j.saver != nil {
		id, err := j.saver.SaveOptimization(res)
		if err != nil {
			return fmt.Errorf("saving optimization: %w", err)
		}
		j.log.Info().
			Str("optimization_id", id).
			Float64("best_score", res.BestScore).
			Int("trials", res.NTrials).
			Msg("Re-optimization saved")
	}
	return nil
}
