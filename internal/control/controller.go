package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"stakesim/internal/simulation"
)

var ErrUnknownController = errors.New("unknown controller")

// State is what a controller sees before choosing the next alpha.
type State struct {
	Observation simulation.Observation
	Info        simulation.Info
	Feedback    float64
}

// Controller picks alpha for the coming round. Implementations stand in for
// an external agent and do not learn.
type Controller interface {
	Name() string
	NextAlpha(ctx context.Context, state State) (float64, error)
}

type Constant struct {
	Alpha float64
}

func (Constant) Name() string { return "constant" }

func (c Constant) NextAlpha(ctx context.Context, _ State) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.Alpha, nil
}

// Schedule cycles through Alphas by round number.
type Schedule struct {
	Alphas []float64
}

func (Schedule) Name() string { return "schedule" }

func (s Schedule) NextAlpha(ctx context.Context, state State) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(s.Alphas) == 0 {
		return 0, errors.New("schedule controller requires at least one alpha")
	}
	return s.Alphas[state.Info.Round%len(s.Alphas)], nil
}

// Ramp moves linearly from From to To over Rounds rounds, then holds To.
type Ramp struct {
	From   float64
	To     float64
	Rounds int
}

func (Ramp) Name() string { return "ramp" }

func (r Ramp) NextAlpha(ctx context.Context, state State) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.Rounds <= 0 || state.Info.Round >= r.Rounds {
		return r.To, nil
	}
	frac := float64(state.Info.Round) / float64(r.Rounds)
	return r.From + (r.To-r.From)*frac, nil
}

// Proportional raises alpha while the honest share sits below Target.
type Proportional struct {
	Target float64
	Gain   float64
	Base   float64
	Min    float64
	Max    float64
}

func (Proportional) Name() string { return "proportional" }

func (p Proportional) NextAlpha(ctx context.Context, state State) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	alpha := p.Base + p.Gain*(p.Target-state.Observation.HonestProportion)
	return clamp(alpha, p.Min, p.Max), nil
}

// Uniform samples alpha uniformly from [Min, Max]; a random-agent baseline.
type Uniform struct {
	Rand *rand.Rand
	Min  float64
	Max  float64
}

func (Uniform) Name() string { return "uniform" }

func (u Uniform) NextAlpha(ctx context.Context, _ State) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if u.Rand == nil {
		return 0, errors.New("uniform controller requires a random source")
	}
	return u.Min + u.Rand.Float64()*(u.Max-u.Min), nil
}

// Params carries every knob the named controllers understand; each
// controller reads only its own fields.
type Params struct {
	Alpha  float64   `json:"alpha" yaml:"alpha" toml:"alpha"`
	Alphas []float64 `json:"alphas,omitempty" yaml:"alphas,omitempty" toml:"alphas,omitempty"`
	From   float64   `json:"from" yaml:"from" toml:"from"`
	To     float64   `json:"to" yaml:"to" toml:"to"`
	Rounds int       `json:"rounds" yaml:"rounds" toml:"rounds"`
	Target float64   `json:"target" yaml:"target" toml:"target"`
	Gain   float64   `json:"gain" yaml:"gain" toml:"gain"`
	Min    float64   `json:"min" yaml:"min" toml:"min"`
	Max    float64   `json:"max" yaml:"max" toml:"max"`
	Seed   int64     `json:"seed" yaml:"seed" toml:"seed"`
}

func DefaultParams() Params {
	return Params{
		Alpha:  simulation.DefaultInitialAlpha,
		From:   0,
		To:     4,
		Rounds: 100,
		Target: 0.9,
		Gain:   4,
		Min:    0,
		Max:    4,
		Seed:   simulation.DefaultSeed,
	}
}

func FromName(name string, p Params) (Controller, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "constant":
		return Constant{Alpha: p.Alpha}, nil
	case "schedule":
		if len(p.Alphas) == 0 {
			return nil, errors.New("schedule controller requires at least one alpha")
		}
		return Schedule{Alphas: append([]float64(nil), p.Alphas...)}, nil
	case "ramp":
		return Ramp{From: p.From, To: p.To, Rounds: p.Rounds}, nil
	case "proportional":
		if p.Min > p.Max {
			return nil, fmt.Errorf("proportional controller: min %v exceeds max %v", p.Min, p.Max)
		}
		return Proportional{Target: p.Target, Gain: p.Gain, Base: p.Alpha, Min: p.Min, Max: p.Max}, nil
	case "uniform":
		if p.Min > p.Max {
			return nil, fmt.Errorf("uniform controller: min %v exceeds max %v", p.Min, p.Max)
		}
		return Uniform{Rand: rand.New(rand.NewSource(p.Seed)), Min: p.Min, Max: p.Max}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownController, name)
	}
}

func Names() []string {
	return []string{"constant", "schedule", "ramp", "proportional", "uniform"}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
