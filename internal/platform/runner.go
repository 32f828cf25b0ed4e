package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stakesim/internal/control"
	"stakesim/internal/metrics"
	"stakesim/internal/model"
	"stakesim/internal/simulation"
	"stakesim/internal/stats"
	"stakesim/internal/storage"
)

var ErrRunStopped = errors.New("run stopped")

type Config struct {
	Store        storage.Store
	Logger       zerolog.Logger
	ArtifactsDir string
	// Now is the clock used for run timestamps; nil means time.Now.
	Now func() time.Time
}

// RunConfig describes one run: Episodes episodes of the same simulation, the
// i-th seeded with Seed+i, each driven by a fresh controller.
type RunConfig struct {
	RunID            string
	Simulation       simulation.Config
	Seed             int64
	Episodes         int
	Controller       string
	ControllerParams control.Params
}

type RunResult struct {
	Run          model.RunRecord
	Rounds       []model.RoundRecord
	ArtifactsDir string
}

// Runner drives simulations with a controller, persists what they emit and
// reports progress through logs and metrics.
type Runner struct {
	store        storage.Store
	logger       zerolog.Logger
	artifactsDir string
	now          func() time.Time

	mu      sync.RWMutex
	started bool
	runs    map[string]context.CancelFunc
}

func NewRunner(cfg Config) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		store:        cfg.Store,
		logger:       cfg.Logger,
		artifactsDir: cfg.ArtifactsDir,
		now:          now,
		runs:         make(map[string]context.CancelFunc),
	}
}

func (r *Runner) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

func (r *Runner) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

func (r *Runner) Store() storage.Store {
	return r.store
}

func (r *Runner) Run(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if cfg.Episodes <= 0 {
		return RunResult{}, fmt.Errorf("episodes must be positive, got %d", cfg.Episodes)
	}
	if _, err := control.FromName(cfg.Controller, cfg.ControllerParams); err != nil {
		return RunResult{}, err
	}
	sim, err := simulation.New(cfg.Simulation, cfg.Seed)
	if err != nil {
		return RunResult{}, err
	}
	cfg.Simulation = sim.Config()

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.registerRun(runID, cancel); err != nil {
		return RunResult{}, err
	}
	defer r.unregisterRun(runID)

	logger := r.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Str("controller", cfg.Controller).
		Str("rebalancer", sim.RebalancerName()).
		Int("num_validators", cfg.Simulation.NumValidators).
		Int("episodes", cfg.Episodes).
		Int64("seed", cfg.Seed).
		Msg("run started")

	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		CreatedAtUTC:    r.now().UTC().Format(time.RFC3339Nano),
		Seed:            cfg.Seed,
		Episodes:        cfg.Episodes,
		Controller:      cfg.Controller,
		Rebalancer:      sim.RebalancerName(),
		NumValidators:   cfg.Simulation.NumValidators,
		HonestRatio:     cfg.Simulation.HonestRatio,
		InitialAlpha:    cfg.Simulation.InitialAlpha,
		Rounds:          cfg.Simulation.Rounds,
		Summaries:       make([]model.EpisodeSummary, 0, cfg.Episodes),
	}
	var rounds []model.RoundRecord
	for episode := 0; episode < cfg.Episodes; episode++ {
		params := cfg.ControllerParams
		params.Seed += int64(episode)
		controller, err := control.FromName(cfg.Controller, params)
		if err != nil {
			return RunResult{}, err
		}
		seed := cfg.Seed + int64(episode)
		trace, err := r.runEpisode(runCtx, logger, sim, controller, episode, seed)
		if err != nil {
			metrics.RecordRun(cfg.Controller, false)
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				return RunResult{}, fmt.Errorf("%w: %s", ErrRunStopped, runID)
			}
			return RunResult{}, err
		}
		summary := stats.SummarizeEpisode(episode, seed, trace)
		run.Summaries = append(run.Summaries, summary)
		rounds = append(rounds, trace...)

		logger.Info().
			Int("episode", episode).
			Int("rounds", summary.Rounds).
			Str("termination", summary.Termination).
			Float64("total_feedback", summary.TotalFeedback).
			Float64("final_honest_proportion", summary.FinalHonestProportion).
			Msg("episode finished")
	}

	if err := r.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := r.store.SaveRounds(ctx, runID, rounds); err != nil {
		return RunResult{}, fmt.Errorf("save rounds %s: %w", runID, err)
	}

	result := RunResult{Run: run, Rounds: rounds}
	if r.artifactsDir != "" {
		dir, err := r.writeArtifacts(cfg, run, rounds)
		if err != nil {
			return RunResult{}, err
		}
		result.ArtifactsDir = dir
	}
	metrics.RecordRun(cfg.Controller, true)
	return result, nil
}

// runEpisode resets sim with seed and steps it until it reports terminal.
func (r *Runner) runEpisode(ctx context.Context, logger zerolog.Logger, sim *simulation.Simulation, controller control.Controller, episode int, seed int64) ([]model.RoundRecord, error) {
	obs, info := sim.Reset(seed)
	state := control.State{Observation: obs, Info: info}

	trace := make([]model.RoundRecord, 0, sim.Config().Rounds)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alpha, err := controller.NextAlpha(ctx, state)
		if err != nil {
			return nil, err
		}
		res, err := sim.Step(alpha)
		if err != nil {
			return nil, err
		}

		trace = append(trace, roundRecord(episode, res))
		metrics.RecordRound(res.Info.Alpha, res.Feedback, res.Observation.HonestProportion, res.Info.Flips)
		logger.Debug().
			Int("episode", episode).
			Int("round", res.Info.Round).
			Float64("alpha", res.Info.Alpha).
			Float64("honest_proportion", res.Observation.HonestProportion).
			Float64("feedback", res.Feedback).
			Float64("sum_of_balance", res.Observation.SumOfBalance).
			Float64("sum_of_effective_balance", res.Observation.SumOfEffectiveBalance).
			Int("flips", res.Info.Flips).
			Msg("round")

		if res.Terminal {
			metrics.RecordTermination(string(res.Info.Termination))
			return trace, nil
		}
		state = control.State{Observation: res.Observation, Info: res.Info, Feedback: res.Feedback}
	}
}

func (r *Runner) writeArtifacts(cfg RunConfig, run model.RunRecord, rounds []model.RoundRecord) (string, error) {
	dir, err := stats.WriteRunArtifacts(r.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            run.ID,
			Controller:       cfg.Controller,
			ControllerAlpha:  cfg.ControllerParams.Alpha,
			ControllerAlphas: cfg.ControllerParams.Alphas,
			Rebalancer:       run.Rebalancer,
			NumValidators:    run.NumValidators,
			HonestRatio:      run.HonestRatio,
			InitialAlpha:     run.InitialAlpha,
			Rounds:           run.Rounds,
			Episodes:         run.Episodes,
			Seed:             run.Seed,
			DeltaScale:       cfg.Simulation.Shaping.DeltaScale,
			Gain:             cfg.Simulation.Shaping.Gain,
			Offset:           cfg.Simulation.Shaping.Offset,
		},
		Summaries: run.Summaries,
		Rounds:    rounds,
	})
	if err != nil {
		return "", fmt.Errorf("write artifacts %s: %w", run.ID, err)
	}
	if err := stats.AppendRunIndex(r.artifactsDir, stats.IndexEntry(run)); err != nil {
		return "", fmt.Errorf("append run index %s: %w", run.ID, err)
	}
	return dir, nil
}

// RunBatch runs independent configs on up to workers goroutines. Results keep
// the order of cfgs; the first error wins.
func (r *Runner) RunBatch(ctx context.Context, cfgs []RunConfig, workers int) ([]RunResult, error) {
	if len(cfgs) == 0 {
		return []RunResult{}, nil
	}
	type job struct {
		idx int
		cfg RunConfig
	}
	type result struct {
		idx int
		res RunResult
		err error
	}

	jobs := make(chan job)
	results := make(chan result, len(cfgs))

	workerCount := workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(cfgs) {
		workerCount = len(cfgs)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				res, err := r.Run(ctx, j.cfg)
				results <- result{idx: j.idx, res: res, err: err}
			}
		}()
	}

	for i := range cfgs {
		jobs <- job{idx: i, cfg: cfgs[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]RunResult, len(cfgs))
	var firstErr error
	firstIdx := len(cfgs)
	for res := range results {
		if res.err != nil {
			if res.idx < firstIdx {
				firstIdx, firstErr = res.idx, res.err
			}
			continue
		}
		out[res.idx] = res.res
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// StopRun cancels an in-flight run. The run returns ErrRunStopped and
// persists nothing.
func (r *Runner) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	r.mu.RLock()
	cancel, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel()
	return nil
}

func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	return ids
}

func (r *Runner) registerRun(runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return fmt.Errorf("runner is not initialized")
	}
	if _, exists := r.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	r.runs[runID] = cancel
	return nil
}

func (r *Runner) unregisterRun(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

func roundRecord(episode int, res simulation.StepResult) model.RoundRecord {
	return model.RoundRecord{
		VersionedRecord:       storage.CurrentVersion(),
		Episode:               episode,
		Round:                 res.Info.Round,
		Alpha:                 res.Info.Alpha,
		Feedback:              res.Feedback,
		Terminal:              res.Terminal,
		Termination:           string(res.Info.Termination),
		Flips:                 res.Info.Flips,
		SumOfBalance:          res.Observation.SumOfBalance,
		SumOfEffectiveBalance: res.Observation.SumOfEffectiveBalance,
		HonestProportion:      res.Observation.HonestProportion,
	}
}
