package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"stakesim/internal/control"
	"stakesim/internal/logging"
	"stakesim/internal/simulation"
	"stakesim/internal/storage"
)

const (
	EnvNumValidators = "STAKESIM_NUM_VALIDATORS"
	EnvHonestRatio   = "STAKESIM_HONEST_RATIO"
	EnvInitialAlpha  = "STAKESIM_INITIAL_ALPHA"
	EnvRounds        = "STAKESIM_ROUNDS"
	EnvRebalancer    = "STAKESIM_REBALANCER"
	EnvSeed          = "STAKESIM_SEED"
	EnvEpisodes      = "STAKESIM_EPISODES"
	EnvWorkers       = "STAKESIM_WORKERS"
	EnvController    = "STAKESIM_CONTROLLER"
	EnvStore         = "STAKESIM_STORE"
	EnvSQLitePath    = "STAKESIM_SQLITE_PATH"
	EnvArtifactsDir  = "STAKESIM_ARTIFACTS_DIR"
	EnvServerAddr    = "STAKESIM_ADDR"

	DefaultSQLitePath   = "stakesim.db"
	DefaultArtifactsDir = "runs"
	DefaultServerAddr   = ":8080"
	DefaultAlphaMin     = 0.0
	DefaultAlphaMax     = 4.0
)

type File struct {
	Simulation simulation.Config `json:"simulation" yaml:"simulation" toml:"simulation"`
	Run        RunConfig         `json:"run" yaml:"run" toml:"run"`
	Storage    StorageConfig     `json:"storage" yaml:"storage" toml:"storage"`
	Server     ServerConfig      `json:"server" yaml:"server" toml:"server"`
	Logging    LoggingConfig     `json:"logging" yaml:"logging" toml:"logging"`
}

type RunConfig struct {
	RunID      string         `json:"run_id,omitempty" yaml:"run_id,omitempty" toml:"run_id,omitempty"`
	Seed       int64          `json:"seed" yaml:"seed" toml:"seed"`
	Episodes   int            `json:"episodes" yaml:"episodes" toml:"episodes"`
	Workers    int            `json:"workers" yaml:"workers" toml:"workers"`
	Controller string         `json:"controller" yaml:"controller" toml:"controller"`
	Params     control.Params `json:"params" yaml:"params" toml:"params"`
}

type StorageConfig struct {
	Kind         string `json:"kind" yaml:"kind" toml:"kind"`
	SQLitePath   string `json:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" toml:"artifacts_dir"`
}

// ServerConfig bounds the alpha an external controller may submit. The
// simulation itself never clamps.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr"`
	AlphaMin    float64  `json:"alpha_min" yaml:"alpha_min" toml:"alpha_min"`
	AlphaMax    float64  `json:"alpha_max" yaml:"alpha_max" toml:"alpha_max"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty" toml:"cors_origins,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level" yaml:"level" toml:"level"`
	Format  string `json:"format" yaml:"format" toml:"format"`
	NoColor bool   `json:"no_color" yaml:"no_color" toml:"no_color"`
}

func Default() *File {
	return &File{
		Simulation: simulation.DefaultConfig(),
		Run: RunConfig{
			Seed:       simulation.DefaultSeed,
			Episodes:   1,
			Workers:    1,
			Controller: "constant",
			Params:     control.DefaultParams(),
		},
		Storage: StorageConfig{
			Kind:         storage.DefaultStoreKind(),
			SQLitePath:   DefaultSQLitePath,
			ArtifactsDir: DefaultArtifactsDir,
		},
		Server: ServerConfig{
			Addr:     DefaultServerAddr,
			AlphaMin: DefaultAlphaMin,
			AlphaMax: DefaultAlphaMax,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// Load reads path over the defaults and then applies STAKESIM_* overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*File, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *File) error {
	if v := strings.TrimSpace(os.Getenv(EnvNumValidators)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNumValidators, err)
		}
		cfg.Simulation.NumValidators = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvHonestRatio)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHonestRatio, err)
		}
		cfg.Simulation.HonestRatio = f
	}
	if v := strings.TrimSpace(os.Getenv(EnvInitialAlpha)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInitialAlpha, err)
		}
		cfg.Simulation.InitialAlpha = f
	}
	if v := strings.TrimSpace(os.Getenv(EnvRounds)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRounds, err)
		}
		cfg.Simulation.Rounds = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvRebalancer)); v != "" {
		cfg.Simulation.Rebalancer = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSeed)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSeed, err)
		}
		cfg.Run.Seed = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvEpisodes)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEpisodes, err)
		}
		cfg.Run.Episodes = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Run.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvController)); v != "" {
		cfg.Run.Controller = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		cfg.Storage.Kind = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSQLitePath)); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvArtifactsDir)); v != "" {
		cfg.Storage.ArtifactsDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(logging.EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(logging.EnvLogFormat)); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func (c *File) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if c.Run.Episodes <= 0 {
		return fmt.Errorf("run.episodes must be positive, got %d", c.Run.Episodes)
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be positive, got %d", c.Run.Workers)
	}
	if _, err := control.FromName(c.Run.Controller, c.Run.Params); err != nil {
		return fmt.Errorf("run.controller: %w", err)
	}
	switch c.Storage.Kind {
	case storage.KindMemory:
	case storage.KindSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage kind: %s (valid: %s)", c.Storage.Kind, strings.Join(storage.Kinds(), ", "))
	}
	if !finite(c.Server.AlphaMin) || !finite(c.Server.AlphaMax) || c.Server.AlphaMin > c.Server.AlphaMax {
		return fmt.Errorf("server alpha range [%v, %v] is invalid", c.Server.AlphaMin, c.Server.AlphaMax)
	}
	if c.Logging.Level != "" {
		if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
			return fmt.Errorf("invalid log level: %s", c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (valid: console, json)", c.Logging.Format)
	}
	return nil
}

// LoggingOptions maps the logging section onto logger construction options.
func (c *File) LoggingOptions(app string) logging.Options {
	return logging.Options{
		App:     app,
		Level:   c.Logging.Level,
		Format:  c.Logging.Format,
		NoColor: c.Logging.NoColor,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
