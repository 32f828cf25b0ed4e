package validator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Strategy is the behaviour a validator holds for a round.
type Strategy string

const (
	Honest    Strategy = "honest"
	Malicious Strategy = "malicious"
)

var ErrUnknownStrategy = errors.New("unknown validator strategy")

// ParseStrategy accepts the canonical lower-case names, ignoring surrounding space and case.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case Honest:
		return Honest, nil
	case Malicious:
		return Malicious, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
}

func (s Strategy) Valid() bool {
	return s == Honest || s == Malicious
}

const (
	InitialBalance = 32.0

	BaseRewardFactor   = 64
	BaseRewardPerEpoch = 4

	// Effective balance moves one unit per full quantum of a single delta.
	EffectiveIncreaseQuantum = 1.25
	EffectiveDecreaseQuantum = 0.5

	ProposerWeight    = 8
	VoteWeight        = 54
	SyncRewardWeight  = 2
	WeightDenominator = 64
)

// Validator holds one participant's stake. Balances are stored unclamped;
// readers see them floored at zero.
type Validator struct {
	id               int
	strategy         Strategy
	balance          float64
	effectiveBalance float64
}

// New returns a validator holding InitialBalance as both balance and
// effective balance.
func New(id int, strategy Strategy) (*Validator, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("validator %d: %w: %q", id, ErrUnknownStrategy, strategy)
	}
	return &Validator{
		id:               id,
		strategy:         strategy,
		balance:          InitialBalance,
		effectiveBalance: InitialBalance,
	}, nil
}

// MustNew is New for strategies known to be valid.
func MustNew(id int, strategy Strategy) *Validator {
	v, err := New(id, strategy)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Validator) ID() int {
	return v.id
}

func (v *Validator) Strategy() Strategy {
	return v.strategy
}

func (v *Validator) IsHonest() bool {
	return v.strategy == Honest
}

// SetStrategy overwrites the strategy. Only population rebalancing calls it.
func (v *Validator) SetStrategy(strategy Strategy) {
	v.strategy = strategy
}

// Balance is the stake floored at zero; the stored value may be negative.
func (v *Validator) Balance() float64 {
	return math.Max(0, v.balance)
}

// EffectiveBalance is the effective balance floored at zero.
func (v *Validator) EffectiveBalance() float64 {
	return math.Max(0, v.effectiveBalance)
}

// BaseReward shrinks with the square root of the total active balance. The
// divisor is floored at one so an empty network cannot divide by zero.
func (v *Validator) BaseReward(sumOfActiveBalance float64) float64 {
	reward := v.effectiveBalance * BaseRewardFactor / (BaseRewardPerEpoch * math.Sqrt(math.Max(1, sumOfActiveBalance)))
	return math.Max(0, reward)
}

// IncreaseBalance adds amount to the balance. The effective balance moves by
// whole units only when a single credit reaches EffectiveIncreaseQuantum.
func (v *Validator) IncreaseBalance(amount float64) {
	v.balance += amount
	if amount >= EffectiveIncreaseQuantum {
		v.effectiveBalance += math.Floor(amount / EffectiveIncreaseQuantum)
	}
}

// DecreaseBalance is the debit counterpart of IncreaseBalance, stepping the
// effective balance per full EffectiveDecreaseQuantum.
func (v *Validator) DecreaseBalance(amount float64) {
	v.balance -= amount
	if amount >= EffectiveDecreaseQuantum {
		v.effectiveBalance -= math.Floor(amount / EffectiveDecreaseQuantum)
	}
}

// Propose credits the proposer share to honest proposers. Malicious validators
// are never picked as proposer, so they receive only the sync committee share.
func (v *Validator) Propose(baseReward, honestProportion float64) {
	if v.strategy == Honest {
		v.IncreaseBalance(weighted(ProposerWeight, baseReward, honestProportion))
	}
	v.syncCommitteeReward(baseReward, honestProportion)
}

// Vote rewards honest attesters and charges malicious ones alpha times the
// same amount.
func (v *Validator) Vote(baseReward, honestProportion, alpha float64) {
	amount := weighted(VoteWeight, baseReward, honestProportion)
	switch v.strategy {
	case Honest:
		v.IncreaseBalance(amount)
	case Malicious:
		v.DecreaseBalance(alpha * amount)
	}
	v.syncCommitteeReward(baseReward, honestProportion)
}

func (v *Validator) syncCommitteeReward(baseReward, honestProportion float64) {
	v.IncreaseBalance(weighted(SyncRewardWeight, baseReward, honestProportion))
}

func weighted(weight int, baseReward, honestProportion float64) float64 {
	return float64(weight) / WeightDenominator * baseReward * honestProportion
}

// Record is a read-only snapshot for external logging.
type Record struct {
	ID               int      `json:"id" yaml:"id"`
	Strategy         Strategy `json:"strategy" yaml:"strategy"`
	Balance          float64  `json:"balance" yaml:"balance"`
	EffectiveBalance float64  `json:"effective_balance" yaml:"effective_balance"`
}

func (v *Validator) Record() Record {
	return Record{
		ID:               v.id,
		Strategy:         v.strategy,
		Balance:          v.Balance(),
		EffectiveBalance: v.EffectiveBalance(),
	}
}
