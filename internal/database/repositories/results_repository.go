// Package repositories persists backtest runs and optimization ledgers to
// the results database.
package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/momentum-lab/internal/database"
	"github.com/aristath/momentum-lab/internal/modules/backtest"
	"github.com/aristath/momentum-lab/internal/modules/tuning"
)

// ResultsRepository handles database operations for backtest and
// optimization results
type ResultsRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewResultsRepository creates a results repository and ensures the schema
// exists
func NewResultsRepository(db *database.DB, log zerolog.Logger) (*ResultsRepository, error) {
	r := &ResultsRepository{
		db:  db,
		log: log.With().Str("component", "results_repository").Logger(),
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

// init creates the result tables if they do not exist
func (r *ResultsRepository) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id              TEXT PRIMARY KEY,
		strategy        TEXT NOT NULL,
		start_ts        INTEGER NOT NULL,
		end_ts          INTEGER NOT NULL,
		initial_capital REAL NOT NULL,
		final_capital   REAL NOT NULL,
		metrics         TEXT NOT NULL,
		curves          BLOB NOT NULL,
		created_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS optimizations (
		id          TEXT PRIMARY KEY,
		method      TEXT NOT NULL,
		metric      TEXT NOT NULL,
		maximize    INTEGER NOT NULL,
		best_params TEXT,
		best_score  REAL NOT NULL,
		n_trials    INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS optimization_trials (
		optimization_id TEXT NOT NULL REFERENCES optimizations(id) ON DELETE CASCADE,
		trial_index     INTEGER NOT NULL,
		params          TEXT NOT NULL,
		score           REAL NOT NULL,
		error           TEXT NOT NULL DEFAULT '',
		duration_ms     INTEGER NOT NULL,
		PRIMARY KEY (optimization_id, trial_index)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON backtest_runs(strategy, created_at);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create results schema: %w", err)
	}
	return nil
}

// curveBlob is the msgpack payload holding the per-bar series of a run. The
// curves dominate row size, so they travel as one binary blob instead of
// per-point rows.
type curveBlob struct {
	Timestamps []int64   `msgpack:"ts"`
	Equity     []float64 `msgpack:"eq"`
	Benchmark  []float64 `msgpack:"bm,omitempty"`
}

// RunRecord is a persisted backtest run
type RunRecord struct {
	ID             string
	Strategy       string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalCapital   float64
	Metrics        map[string]float64
	Timestamps     []time.Time
	EquityCurve    []float64
	BenchmarkCurve []float64
	CreatedAt      time.Time
}

// RunSummary is one row of the run listing, without the curve payload
type RunSummary struct {
	ID           string
	Strategy     string
	Start        time.Time
	End          time.Time
	FinalCapital float64
	CreatedAt    time.Time
}

// SaveRun persists a backtest result
func (r *ResultsRepository) SaveRun(res *backtest.Result) error {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	blob := curveBlob{
		Timestamps: make([]int64, len(res.Timestamps)),
		Equity:     res.EquityCurve,
		Benchmark:  res.BenchmarkCurve,
	}
	for i, ts := range res.Timestamps {
		blob.Timestamps[i] = ts.UnixNano()
	}
	curves, err := msgpack.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to encode curves: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO backtest_runs
			(id, strategy, start_ts, end_ts, initial_capital, final_capital, metrics, curves, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.StrategyName, res.Start.UnixNano(), res.End.UnixNano(),
		res.InitialCapital, res.FinalCapital, string(metrics), curves, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", res.ID, err)
	}

	r.log.Debug().Str("run_id", res.ID).Str("strategy", res.StrategyName).Msg("Saved backtest run")
	return nil
}

// GetRun loads one persisted run, curves included
func (r *ResultsRepository) GetRun(id string) (*RunRecord, error) {
	var (
		rec        RunRecord
		startNanos int64
		endNanos   int64
		metrics    string
		curves     []byte
		created    int64
	)

	err := r.db.QueryRow(`
		SELECT id, strategy, start_ts, end_ts, initial_capital, final_capital, metrics, curves, created_at
		FROM backtest_runs WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Strategy, &startNanos, &endNanos,
		&rec.InitialCapital, &rec.FinalCapital, &metrics, &curves, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	rec.Start = time.Unix(0, startNanos).UTC()
	rec.End = time.Unix(0, endNanos).UTC()
	rec.CreatedAt = time.Unix(0, created).UTC()

	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics for run %s: %w", id, err)
	}

	var blob curveBlob
	if err := msgpack.Unmarshal(curves, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode curves for run %s: %w", id, err)
	}
	rec.EquityCurve = blob.Equity
	rec.BenchmarkCurve = blob.Benchmark
	rec.Timestamps = make([]time.Time, len(blob.Timestamps))
	for i, nanos := range blob.Timestamps {
		rec.Timestamps[i] = time.Unix(0, nanos).UTC()
	}

	return &rec, nil
}

// ListRuns returns the most recent runs, newest first
func (r *ResultsRepository) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, strategy, start_ts, end_ts, final_capital, created_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			s          RunSummary
			startNanos int64
			endNanos   int64
			created    int64
		)
		if err := rows.Scan(&s.ID, &s.Strategy, &startNanos, &endNanos, &s.FinalCapital, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		s.Start = time.Unix(0, startNanos).UTC()
		s.End = time.Unix(0, endNanos).UTC()
		s.CreatedAt = time.Unix(0, created).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// OptimizationRecord is a persisted search run with its full trial ledger
type OptimizationRecord struct {
	ID         string
	Method     string
	Metric     string
	Maximize   bool
	BestParams map[string]interface{}
	BestScore  float64
	NTrials    int
	Duration   time.Duration
	Trials     []tuning.TrialResult
	CreatedAt  time.Time
}

// SaveOptimization persists a search result and its trial ledger in one
// transaction, returning the generated id
func (r *ResultsRepository) SaveOptimization(res *tuning.OptimizationResult) (string, error) {
	id := uuid.NewString()

	bestParams, err := json.Marshal(res.BestParams)
	if err != nil {
		return "", fmt.Errorf("failed to encode best params: %w", err)
	}

	err = database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO optimizations
				(id, method, metric, maximize, best_params, best_score, n_trials, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, res.Method, res.Metric, boolToInt(res.Maximize), string(bestParams),
			res.BestScore, res.NTrials, res.Duration.Milliseconds(), time.Now().UnixNano())
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO optimization_trials
				(optimization_id, trial_index, params, score, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, trial := range res.Trials {
			params, err := json.Marshal(trial.Params)
			if err != nil {
				return fmt.Errorf("failed to encode trial %d params: %w", trial.Index, err)
			}
			if _, err := stmt.Exec(id, trial.Index, string(params), trial.Score, trial.Err, trial.Duration.Milliseconds()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save optimization: %w", err)
	}

	r.log.Debug().
		Str("optimization_id", id).
		Str("method", res.Method).
		Int("trials", res.NTrials).
		Msg("Saved optimization run")
	return id, nil
}

// GetOptimization loads a search run with its trials in ledger order
func (r *ResultsRepository) GetOptimization(id string) (*OptimizationRecord, error) {
	var (
		rec        OptimizationRecord
		maximize   int
		bestParams string
		durationMs int64
		created    int64
	)

	err := r.db.QueryRow(`
		SELECT id, method, metric, maximize, best_params, best_score, n_trials, duration_ms, created_at
		FROM optimizations WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Method, &rec.Metric, &maximize, &bestParams,
		&rec.BestScore, &rec.NTrials, &durationMs, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("optimization %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load optimization %s: %w", id, err)
	}

	rec.Maximize = maximize != 0
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(bestParams), &rec.BestParams); err != nil {
		return nil, fmt.Errorf("failed to decode best params for %s: %w", id, err)
	}

	rows, err := r.db.Query(`
		SELECT trial_index, params, score, error, duration_ms
		FROM optimization_trials WHERE optimization_id = ? ORDER BY trial_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trial    tuning.TrialResult
			params   string
			trialDur int64
		)
		if err := rows.Scan(&trial.Index, &params, &trial.Score, &trial.Err, &trialDur); err != nil {
			return nil, fmt.Errorf("failed to scan trial row: %w", err)
		}
		trial.Duration = time.Duration(trialDur) * time.Millisecond
		if err := json.Unmarshal([]byte(params), &trial.Params); err != nil {
			return nil, fmt.Errorf("failed to decode trial %d params: %w", trial.Index, err)
		}
		rec.Trials = append(rec.Trials, trial)
	}
	return &rec, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
