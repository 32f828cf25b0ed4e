package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"stakesim/internal/validator"
)

var ErrUnknownRebalancer = errors.New("unknown rebalancer")

const (
	StakeWeightedName    = "stake_weighted"
	LogisticName         = "logistic"
	DecliningBalanceName = "declining_balance"

	DefaultLogisticSteepness = 10.0
	DefaultDecliningWindow   = 5
)

// Rebalancer converts validators between strategies once rewards for a round
// have been paid. honestProportion is the by-count share before the round.
type Rebalancer interface {
	Name() string
	Reset(population []*validator.Validator)
	Rebalance(rng *rand.Rand, population []*validator.Validator, honestProportion float64) Outcome
}

// Outcome describes one rebalancing pass. Termination is set when the pass
// needed a source pool that was empty.
type Outcome struct {
	Target      float64
	Diff        float64
	Flipped     int
	Termination TerminationReason
}

func RebalancerFromName(name string) (Rebalancer, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", StakeWeightedName:
		return StakeWeighted{}, nil
	case LogisticName:
		return &Logistic{Steepness: DefaultLogisticSteepness}, nil
	case DecliningBalanceName:
		return &DecliningBalance{Window: DefaultDecliningWindow}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRebalancer, name)
	}
}

// StakeWeighted moves the by-count honest share toward the honest share of
// total balance. Which individuals switch is chosen by shuffling.
type StakeWeighted struct{}

func (StakeWeighted) Name() string { return StakeWeightedName }

func (StakeWeighted) Reset([]*validator.Validator) {}

func (StakeWeighted) Rebalance(rng *rand.Rand, population []*validator.Validator, honestProportion float64) Outcome {
	target, ok := balanceShare(population)
	if !ok {
		return Outcome{Target: honestProportion}
	}
	out := Outcome{Target: target, Diff: target - honestProportion}

	switch {
	case out.Diff > 0:
		pool := subset(population, validator.Malicious)
		if len(pool) == 0 {
			out.Termination = TerminationNoMalicious
			return out
		}
		out.Flipped = flipShuffled(rng, pool, out.Diff, validator.Honest)
	case out.Diff < 0:
		pool := subset(population, validator.Honest)
		if len(pool) == 0 {
			out.Termination = TerminationNoHonest
			return out
		}
		out.Flipped = flipShuffled(rng, pool, -out.Diff, validator.Malicious)
	}
	return out
}

// FlipCount is floor(size*fraction), never more than size.
func FlipCount(size int, fraction float64) int {
	n := int(float64(size) * math.Abs(fraction))
	if n > size {
		return size
	}
	return n
}

func flipShuffled(rng *rand.Rand, pool []*validator.Validator, fraction float64, to validator.Strategy) int {
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	n := FlipCount(len(pool), fraction)
	for _, v := range pool[:n] {
		v.SetStrategy(to)
	}
	return n
}

// Logistic lets each validator switch with a probability that grows with how
// much better the other strategy pays per capita.
type Logistic struct {
	Steepness float64
}

func (*Logistic) Name() string { return LogisticName }

func (*Logistic) Reset([]*validator.Validator) {}

func (l *Logistic) Rebalance(rng *rand.Rand, population []*validator.Validator, honestProportion float64) Outcome {
	out := Outcome{Target: honestProportion}
	if target, ok := balanceShare(population); ok {
		out.Target = target
		out.Diff = target - honestProportion
	}

	var sums, counts [2]float64
	for _, v := range population {
		idx := strategyIndex(v.Strategy())
		sums[idx] += v.Balance()
		counts[idx]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return out
	}
	perCapita := [2]float64{sums[0] / counts[0], sums[1] / counts[1]}

	var switching []*validator.Validator
	for _, v := range population {
		own := strategyIndex(v.Strategy())
		p := l.switchProbability(perCapita[own], perCapita[1-own])
		if p > 0 && rng.Float64() < p {
			switching = append(switching, v)
		}
	}
	for _, v := range switching {
		v.SetStrategy(opposite(v.Strategy()))
	}
	out.Flipped = len(switching)
	return out
}

func (l *Logistic) switchProbability(own, other float64) float64 {
	if own <= 0 {
		if other > 0 {
			return 1
		}
		return 0
	}
	ratio := other / own
	p := 2 * (1/(1+math.Exp(-l.Steepness*(ratio-1))) - 0.5)
	return math.Max(0, p)
}

// DecliningBalance switches a validator after its balance has fallen for
// Window consecutive rounds.
type DecliningBalance struct {
	Window int

	last   map[int]float64
	streak map[int]int
}

func (*DecliningBalance) Name() string { return DecliningBalanceName }

func (d *DecliningBalance) Reset(population []*validator.Validator) {
	d.last = make(map[int]float64, len(population))
	d.streak = make(map[int]int, len(population))
	for _, v := range population {
		d.last[v.ID()] = v.Balance()
	}
}

func (d *DecliningBalance) Rebalance(_ *rand.Rand, population []*validator.Validator, honestProportion float64) Outcome {
	if d.last == nil {
		d.Reset(nil)
	}
	window := d.Window
	if window <= 0 {
		window = DefaultDecliningWindow
	}
	out := Outcome{Target: honestProportion}
	if target, ok := balanceShare(population); ok {
		out.Target = target
		out.Diff = target - honestProportion
	}

	for _, v := range population {
		balance := v.Balance()
		if prev, ok := d.last[v.ID()]; ok && balance < prev {
			d.streak[v.ID()]++
		} else {
			d.streak[v.ID()] = 0
		}
		d.last[v.ID()] = balance
		if d.streak[v.ID()] >= window {
			v.SetStrategy(opposite(v.Strategy()))
			d.streak[v.ID()] = 0
			out.Flipped++
		}
	}
	return out
}

// balanceShare is the honest share of total balance. ok is false when the
// population holds no balance at all.
func balanceShare(population []*validator.Validator) (float64, bool) {
	var honest, total float64
	for _, v := range population {
		b := v.Balance()
		total += b
		if v.IsHonest() {
			honest += b
		}
	}
	total = math.Max(0, total)
	if total == 0 {
		return 0, false
	}
	return honest / total, true
}

func subset(population []*validator.Validator, strategy validator.Strategy) []*validator.Validator {
	out := make([]*validator.Validator, 0, len(population))
	for _, v := range population {
		if v.Strategy() == strategy {
			out = append(out, v)
		}
	}
	return out
}

func strategyIndex(s validator.Strategy) int {
	if s == validator.Honest {
		return 0
	}
	return 1
}

func opposite(s validator.Strategy) validator.Strategy {
	if s == validator.Honest {
		return validator.Malicious
	}
	return validator.Honest
}
