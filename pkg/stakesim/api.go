package stakesim

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"stakesim/internal/control"
	"stakesim/internal/model"
	"stakesim/internal/platform"
	"stakesim/internal/simulation"
	"stakesim/internal/stats"
	"stakesim/internal/storage"
	"stakesim/internal/validator"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "stakesim.db"
)

type (
	SimulationConfig = simulation.Config
	ControllerParams = control.Params
	EpisodeSummary   = model.EpisodeSummary
	RoundRecord      = model.RoundRecord
	ValidatorRecord  = validator.Record
)

func DefaultSimulationConfig() SimulationConfig {
	return simulation.DefaultConfig()
}

func DefaultControllerParams() ControllerParams {
	return control.DefaultParams()
}

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zerolog.Logger
}

type Client struct {
	store  storage.Store
	runner *platform.Runner
	logger zerolog.Logger

	artifactsDir string
	exportsDir   string
}

// RunRequest describes a run. A zero Simulation selects the defaults, and a
// nil Params selects the controller defaults with Alpha set to the initial
// alpha.
type RunRequest struct {
	RunID      string
	Simulation SimulationConfig
	Seed       int64
	Episodes   int
	Controller string
	Params     *ControllerParams
}

type RunSummary struct {
	RunID                     string           `json:"run_id"`
	ArtifactsDir              string           `json:"artifacts_dir"`
	Rebalancer                string           `json:"rebalancer"`
	Episodes                  []EpisodeSummary `json:"episodes"`
	MeanFinalHonestProportion float64          `json:"mean_final_honest_proportion"`
	MeanTotalFeedback         float64          `json:"mean_total_feedback"`
}

type BatchRequest struct {
	Runs    []RunRequest
	Workers int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                     string  `json:"run_id"`
	CreatedAtUTC              string  `json:"created_at_utc"`
	Controller                string  `json:"controller"`
	Rebalancer                string  `json:"rebalancer"`
	NumValidators             int     `json:"num_validators"`
	Episodes                  int     `json:"episodes"`
	Seed                      int64   `json:"seed"`
	MeanFinalHonestProportion float64 `json:"mean_final_honest_proportion"`
	MeanTotalFeedback         float64 `json:"mean_total_feedback"`
}

type RoundsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string `json:"run_id"`
	Directory string `json:"directory"`
}

type ValidatorsRequest struct {
	Simulation SimulationConfig
	Seed       int64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureRunner(ctx)
	return err
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	runner, err := c.ensureRunner(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	res, err := runner.Run(ctx, runConfig(req))
	if err != nil {
		return RunSummary{}, err
	}
	return runSummary(res), nil
}

func (c *Client) RunBatch(ctx context.Context, req BatchRequest) ([]RunSummary, error) {
	runner, err := c.ensureRunner(ctx)
	if err != nil {
		return nil, err
	}
	cfgs := make([]platform.RunConfig, 0, len(req.Runs))
	for _, r := range req.Runs {
		cfgs = append(cfgs, runConfig(r))
	}
	results, err := runner.RunBatch(ctx, cfgs, req.Workers)
	if err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(results))
	for _, res := range results {
		out = append(out, runSummary(res))
	}
	return out, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                     e.RunID,
			CreatedAtUTC:              e.CreatedAtUTC,
			Controller:                e.Controller,
			Rebalancer:                e.Rebalancer,
			NumValidators:             e.NumValidators,
			Episodes:                  e.Episodes,
			Seed:                      e.Seed,
			MeanFinalHonestProportion: e.MeanFinalHonestProportion,
			MeanTotalFeedback:         e.MeanTotalFeedback,
		})
	}
	return out, nil
}

// Rounds returns a run's round trace from the store, falling back to the
// exported rounds.csv when the store does not have it.
func (c *Client) Rounds(ctx context.Context, req RoundsRequest) ([]RoundRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	rounds, ok, err := c.store.GetRounds(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		rounds, ok, err = stats.ReadRoundSeries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("rounds not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 && len(rounds) > req.Limit {
		rounds = rounds[:req.Limit]
	}
	return rounds, nil
}

func (c *Client) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("delete requires run id")
	}
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Validators builds the initial population for a seed without stepping it.
func (c *Client) Validators(_ context.Context, req ValidatorsRequest) ([]ValidatorRecord, error) {
	cfg := req.Simulation
	if cfg.NumValidators == 0 {
		cfg = simulation.DefaultConfig()
	}
	sim, err := simulation.New(cfg, req.Seed)
	if err != nil {
		return nil, err
	}
	return sim.Validators(), nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureRunner(ctx context.Context) (*platform.Runner, error) {
	if c.runner != nil {
		return c.runner, nil
	}
	r := platform.NewRunner(platform.Config{
		Store:        c.store,
		Logger:       c.logger,
		ArtifactsDir: c.artifactsDir,
	})
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	c.runner = r
	return c.runner, nil
}

func runConfig(req RunRequest) platform.RunConfig {
	sim := req.Simulation
	if sim.NumValidators == 0 {
		sim = simulation.DefaultConfig()
	}
	episodes := req.Episodes
	if episodes <= 0 {
		episodes = 1
	}
	controller := req.Controller
	if controller == "" {
		controller = "constant"
	}
	var params control.Params
	if req.Params != nil {
		params = *req.Params
	} else {
		params = control.DefaultParams()
		params.Alpha = sim.InitialAlpha
	}
	return platform.RunConfig{
		RunID:            req.RunID,
		Simulation:       sim,
		Seed:             req.Seed,
		Episodes:         episodes,
		Controller:       controller,
		ControllerParams: params,
	}
}

func runSummary(res platform.RunResult) RunSummary {
	entry := stats.IndexEntry(res.Run)
	return RunSummary{
		RunID:                     res.Run.ID,
		ArtifactsDir:              res.ArtifactsDir,
		Rebalancer:                res.Run.Rebalancer,
		Episodes:                  res.Run.Summaries,
		MeanFinalHonestProportion: entry.MeanFinalHonestProportion,
		MeanTotalFeedback:         entry.MeanTotalFeedback,
	}
}
