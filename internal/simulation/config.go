package simulation

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

const (
	DefaultNumValidators = 512
	DefaultHonestRatio   = 0.5
	DefaultInitialAlpha  = 1.0
	DefaultRounds        = 1000
	DefaultSeed          = int64(42)
)

// Shaping holds the feedback constants. The defaults are the historical
// values and are kept exactly. A zero Shaping selects the defaults.
type Shaping struct {
	DeltaScale float64 `json:"delta_scale" yaml:"delta_scale" toml:"delta_scale"`
	Gain       float64 `json:"gain" yaml:"gain" toml:"gain"`
	Offset     float64 `json:"offset" yaml:"offset" toml:"offset"`
}

func DefaultShaping() Shaping {
	return Shaping{DeltaScale: 100, Gain: 10, Offset: 0.01}
}

// Config is fixed at construction; Validate rejects invalid values rather
// than substituting defaults.
type Config struct {
	NumValidators int     `json:"num_validators" yaml:"num_validators" toml:"num_validators"`
	HonestRatio   float64 `json:"honest_ratio" yaml:"honest_ratio" toml:"honest_ratio"`
	InitialAlpha  float64 `json:"initial_alpha" yaml:"initial_alpha" toml:"initial_alpha"`
	Rounds        int     `json:"rounds" yaml:"rounds" toml:"rounds"`
	// Rebalancer names the strategy-update policy; empty selects stake_weighted.
	Rebalancer string  `json:"rebalancer,omitempty" yaml:"rebalancer,omitempty" toml:"rebalancer,omitempty"`
	Shaping    Shaping `json:"shaping" yaml:"shaping" toml:"shaping"`
}

func DefaultConfig() Config {
	return Config{
		NumValidators: DefaultNumValidators,
		HonestRatio:   DefaultHonestRatio,
		InitialAlpha:  DefaultInitialAlpha,
		Rounds:        DefaultRounds,
		Rebalancer:    StakeWeightedName,
		Shaping:       DefaultShaping(),
	}
}

// Validate reports the first invalid field. Nothing is defaulted here.
func (c Config) Validate() error {
	if c.NumValidators <= 0 {
		return fmt.Errorf("%w: num_validators must be a positive integer, got %d", ErrInvalidConfig, c.NumValidators)
	}
	if math.IsNaN(c.HonestRatio) || c.HonestRatio < 0 || c.HonestRatio > 1 {
		return fmt.Errorf("%w: honest_ratio must be within [0, 1], got %v", ErrInvalidConfig, c.HonestRatio)
	}
	if math.IsNaN(c.InitialAlpha) || math.IsInf(c.InitialAlpha, 0) {
		return fmt.Errorf("%w: initial_alpha must be finite, got %v", ErrInvalidConfig, c.InitialAlpha)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be a positive integer, got %d", ErrInvalidConfig, c.Rounds)
	}
	for name, value := range map[string]float64{
		"shaping.delta_scale": c.Shaping.DeltaScale,
		"shaping.gain":        c.Shaping.Gain,
		"shaping.offset":      c.Shaping.Offset,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, name, value)
		}
	}
	if _, err := RebalancerFromName(c.Rebalancer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HonestCount is the number of validators that start honest.
func (c Config) HonestCount() int {
	return int(math.Floor(float64(c.NumValidators) * c.HonestRatio))
}
