package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stakesim/internal/simulation"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvNumValidators, EnvHonestRatio, EnvInitialAlpha, EnvRounds, EnvRebalancer,
		EnvSeed, EnvEpisodes, EnvWorkers, EnvController, EnvStore, EnvSQLitePath,
		EnvArtifactsDir, EnvServerAddr, "STAKESIM_LOG_LEVEL", "STAKESIM_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Simulation.NumValidators != 512 || cfg.Simulation.HonestRatio != 0.5 || cfg.Simulation.Rounds != 1000 {
		t.Fatalf("unexpected simulation defaults: %+v", cfg.Simulation)
	}
	if cfg.Run.Seed != 42 || cfg.Server.AlphaMin != 0 || cfg.Server.AlphaMax != 4 {
		t.Fatalf("unexpected defaults: run=%+v server=%+v", cfg.Run, cfg.Server)
	}
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "stakesim.yaml", `
simulation:
  num_validators: 64
  honest_ratio: 0.25
  rebalancer: logistic
run:
  episodes: 3
  controller: ramp
  params:
    from: 0
    to: 2
    rounds: 10
storage:
  kind: memory
server:
  cors_origins:
    - http://localhost:3000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.NumValidators != 64 || cfg.Simulation.HonestRatio != 0.25 || cfg.Simulation.Rebalancer != "logistic" {
		t.Fatalf("unexpected simulation section: %+v", cfg.Simulation)
	}
	if cfg.Simulation.Rounds != simulation.DefaultRounds || cfg.Simulation.Shaping != simulation.DefaultShaping() {
		t.Fatalf("expected untouched defaults, got %+v", cfg.Simulation)
	}
	if cfg.Run.Episodes != 3 || cfg.Run.Controller != "ramp" || cfg.Run.Params.To != 2 || cfg.Run.Params.Rounds != 10 {
		t.Fatalf("unexpected run section: %+v", cfg.Run)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" || cfg.Server.Addr != DefaultServerAddr {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "stakesim.toml", `
[simulation]
num_validators = 10
rounds = 5

[simulation.shaping]
delta_scale = 50.0
gain = 10.0
offset = 0.01

[server]
addr = "127.0.0.1:9090"
alpha_max = 2.0

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.NumValidators != 10 || cfg.Simulation.Rounds != 5 || cfg.Simulation.Shaping.DeltaScale != 50 {
		t.Fatalf("unexpected simulation section: %+v", cfg.Simulation)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || cfg.Server.AlphaMax != 2 || cfg.Server.AlphaMin != 0 {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
}

func TestLoadJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "stakesim.json", `{"run": {"seed": 7, "controller": "proportional"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Seed != 7 || cfg.Run.Controller != "proportional" || cfg.Run.Episodes != 1 {
		t.Fatalf("unexpected run section: %+v", cfg.Run)
	}
}

func TestLoadRejectsUnknownExtensionAndMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeFile(t, "stakesim.ini", "x=1")); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "stakesim.yaml", "simulation:\n  num_validators: 64\n")
	t.Setenv(EnvNumValidators, "128")
	t.Setenv(EnvHonestRatio, "0.75")
	t.Setenv(EnvSeed, "9")
	t.Setenv(EnvStore, "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.NumValidators != 128 || cfg.Simulation.HonestRatio != 0.75 || cfg.Run.Seed != 9 || cfg.Storage.Kind != "memory" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv(EnvRounds, "many")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed env override")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*File)
	}{
		{name: "honest ratio", mutate: func(c *File) { c.Simulation.HonestRatio = 2 }},
		{name: "episodes", mutate: func(c *File) { c.Run.Episodes = 0 }},
		{name: "workers", mutate: func(c *File) { c.Run.Workers = -1 }},
		{name: "controller", mutate: func(c *File) { c.Run.Controller = "dqn" }},
		{name: "store kind", mutate: func(c *File) { c.Storage.Kind = "redis" }},
		{name: "sqlite path", mutate: func(c *File) { c.Storage.Kind = "sqlite"; c.Storage.SQLitePath = "" }},
		{name: "alpha range", mutate: func(c *File) { c.Server.AlphaMin = 5 }},
		{name: "log level", mutate: func(c *File) { c.Logging.Level = "verbose" }},
		{name: "log format", mutate: func(c *File) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.Kind = "memory"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Simulation.NumValidators = 0
	if err := cfg.Validate(); !errors.Is(err, simulation.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
