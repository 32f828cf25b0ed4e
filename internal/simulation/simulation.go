package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"stakesim/internal/validator"
)

// TerminationReason records why an episode entered the terminal state.
type TerminationReason string

const (
	TerminationNone        TerminationReason = ""
	TerminationRoundsLimit TerminationReason = "rounds_limit"
	TerminationNoHonest    TerminationReason = "no_honest"
	TerminationNoMalicious TerminationReason = "no_malicious"
)

// ErrTerminated is returned by Step once the episode has ended.
var ErrTerminated = errors.New("episode is terminal; reset required")

// Observation is the externally visible state; all three values are
// non-negative and HonestProportion is within [0, 1].
type Observation struct {
	SumOfBalance          float64 `json:"sum_of_balance"`
	SumOfEffectiveBalance float64 `json:"sum_of_effective_balance"`
	HonestProportion      float64 `json:"honest_proportion"`
}

// Info carries informational diagnostics; nothing downstream should depend
// on it for control.
type Info struct {
	Round            int               `json:"round"`
	Alpha            float64           `json:"alpha"`
	HonestProportion float64           `json:"honest_proportion"`
	Flips            int               `json:"flips"`
	Termination      TerminationReason `json:"termination,omitempty"`
}

// StepResult is what one call to Step emits. Feedback and Terminal keep the
// reward/terminated names on the wire.
type StepResult struct {
	Observation Observation `json:"observation"`
	Feedback    float64     `json:"reward"`
	Terminal    bool        `json:"terminated"`
	Info        Info        `json:"info"`
}

// Simulation steps a validator population one round at a time. It is not
// safe for concurrent use; independent instances share nothing.
type Simulation struct {
	cfg        Config
	rebalancer Rebalancer

	seed       int64
	rng        *rand.Rand
	validators []*validator.Validator

	alpha                float64
	round                int
	lastHonestProportion float64
	lastFlips            int
	terminal             bool
	termination          TerminationReason
}

// New validates cfg and builds the population for seed. A zero Shaping
// selects DefaultShaping.
func New(cfg Config, seed int64) (*Simulation, error) {
	if cfg.Shaping == (Shaping{}) {
		cfg.Shaping = DefaultShaping()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rebalancer, err := RebalancerFromName(cfg.Rebalancer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s := &Simulation{cfg: cfg, rebalancer: rebalancer}
	s.Reset(seed)
	return s, nil
}

// Reset rebuilds the population from seed and returns the initial state.
// The same seed always yields the same population.
func (s *Simulation) Reset(seed int64) (Observation, Info) {
	rng := rand.New(rand.NewSource(seed))
	honestCount := s.cfg.HonestCount()
	population := make([]*validator.Validator, 0, s.cfg.NumValidators)
	for id := 0; id < s.cfg.NumValidators; id++ {
		strategy := validator.Malicious
		if id < honestCount {
			strategy = validator.Honest
		}
		population = append(population, validator.MustNew(id, strategy))
	}
	rng.Shuffle(len(population), func(i, j int) { population[i], population[j] = population[j], population[i] })

	s.seed = seed
	s.rng = rng
	s.validators = population
	s.alpha = s.cfg.InitialAlpha
	s.round = 0
	s.lastHonestProportion = s.cfg.HonestRatio
	s.lastFlips = 0
	s.terminal = false
	s.termination = TerminationNone
	s.rebalancer.Reset(population)
	return s.Observation(), s.Info()
}

// Step plays one round with the supplied alpha. Alpha is used as given.
// Running out of honest or malicious validators ends the episode and is
// reported through Terminal, never as an error.
func (s *Simulation) Step(alpha float64) (StepResult, error) {
	if s.terminal {
		return StepResult{Observation: s.Observation(), Terminal: true, Info: s.Info()}, ErrTerminated
	}

	s.alpha = alpha
	s.round++
	s.lastFlips = 0

	sumActive := s.sumActiveBalance()
	honestProportion := s.HonestProportion()

	honest := subset(s.validators, validator.Honest)
	if len(honest) == 0 {
		return s.finish(TerminationNoHonest), nil
	}
	proposer := honest[s.rng.Intn(len(honest))]

	baseReward := proposer.BaseReward(sumActive)
	proposer.Propose(baseReward, honestProportion)
	for _, v := range s.validators {
		if v.ID() != proposer.ID() {
			v.Vote(baseReward, honestProportion, alpha)
		}
	}

	// strategies follow the economic outcome of the round just paid out,
	// measured against the by-count share from before it
	outcome := s.rebalancer.Rebalance(s.rng, s.validators, honestProportion)
	s.lastFlips = outcome.Flipped
	if outcome.Termination != TerminationNone {
		return s.finish(outcome.Termination), nil
	}

	if s.round >= s.cfg.Rounds {
		s.terminal = true
		s.termination = TerminationRoundsLimit
	}
	// a completed round settles the reference share before feedback is
	// taken, leaving the growth term at zero
	s.lastHonestProportion = s.HonestProportion()
	return s.emit(), nil
}

// finish ends the episode early. The reference share is not settled first,
// so the feedback still measures movement since the previous round.
func (s *Simulation) finish(reason TerminationReason) StepResult {
	s.terminal = true
	s.termination = reason
	return s.emit()
}

func (s *Simulation) emit() StepResult {
	feedback := s.feedback()
	return StepResult{
		Observation: s.Observation(),
		Feedback:    feedback,
		Terminal:    s.terminal,
		Info:        s.Info(),
	}
}

// feedback rewards growth of the honest share, weighted by how large that
// share already is, and advances the reference proportion.
func (s *Simulation) feedback() float64 {
	hp := s.HonestProportion()
	delta := (hp - s.lastHonestProportion) * s.cfg.Shaping.DeltaScale
	s.lastHonestProportion = hp
	return delta*s.cfg.Shaping.Gain*hp + hp - s.cfg.HonestRatio - s.cfg.Shaping.Offset
}

func (s *Simulation) sumActiveBalance() float64 {
	var sum float64
	for _, v := range s.validators {
		sum += v.Balance()
	}
	return math.Max(0, sum)
}

// HonestProportion is the by-count share of honest validators.
func (s *Simulation) HonestProportion() float64 {
	honest := 0
	for _, v := range s.validators {
		if v.IsHonest() {
			honest++
		}
	}
	return float64(honest) / float64(len(s.validators))
}

// Observation reads the current state without advancing anything.
func (s *Simulation) Observation() Observation {
	var effective float64
	for _, v := range s.validators {
		effective += v.EffectiveBalance()
	}
	return Observation{
		SumOfBalance:          s.sumActiveBalance(),
		SumOfEffectiveBalance: effective,
		HonestProportion:      s.HonestProportion(),
	}
}

func (s *Simulation) Info() Info {
	return Info{
		Round:            s.round,
		Alpha:            s.alpha,
		HonestProportion: s.HonestProportion(),
		Flips:            s.lastFlips,
		Termination:      s.termination,
	}
}

// Validators dumps the population in its current order.
func (s *Simulation) Validators() []validator.Record {
	out := make([]validator.Record, 0, len(s.validators))
	for _, v := range s.validators {
		out = append(out, v.Record())
	}
	return out
}

func (s *Simulation) Config() Config { return s.cfg }
func (s *Simulation) Seed() int64 { return s.seed }
func (s *Simulation) Round() int { return s.round }
func (s *Simulation) Alpha() float64 { return s.alpha }
func (s *Simulation) Terminal() bool { return s.terminal }
func (s *Simulation) Termination() TerminationReason { return s.termination }
func (s *Simulation) LastHonestProportion() float64 { return s.lastHonestProportion }
func (s *Simulation) RebalancerName() string { return s.rebalancer.Name() }
