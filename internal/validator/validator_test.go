package validator

import (
	"errors"
	"math"
	"testing"
)

func newHonest(t *testing.T) *Validator {
	t.Helper()
	v, err := New(1, Honest)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	if _, err := New(0, Strategy("byzantine")); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		raw     string
		want    Strategy
		wantErr bool
	}{
		{raw: "honest", want: Honest},
		{raw: " Malicious ", want: Malicious},
		{raw: "", wantErr: true},
		{raw: "lazy", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseStrategy(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownStrategy) {
				t.Fatalf("parse %q: expected ErrUnknownStrategy, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.raw, got, tc.want)
		}
	}
}

func TestEffectiveBalanceHysteresis(t *testing.T) {
	cases := []struct {
		name          string
		apply         func(v *Validator)
		wantBalance   float64
		wantEffective float64
	}{
		{name: "increase at threshold", apply: func(v *Validator) { v.IncreaseBalance(1.25) }, wantBalance: 33.25, wantEffective: 33},
		{name: "increase below threshold", apply: func(v *Validator) { v.IncreaseBalance(1.0) }, wantBalance: 33, wantEffective: 32},
		{name: "increase multiple quanta", apply: func(v *Validator) { v.IncreaseBalance(3.0) }, wantBalance: 35, wantEffective: 34},
		{name: "decrease at threshold", apply: func(v *Validator) { v.DecreaseBalance(0.5) }, wantBalance: 31.5, wantEffective: 31},
		{name: "decrease below threshold", apply: func(v *Validator) { v.DecreaseBalance(0.4) }, wantBalance: 31.6, wantEffective: 32},
		{name: "small increments accumulate only in balance", apply: func(v *Validator) {
			for i := 0; i < 4; i++ {
				v.IncreaseBalance(1.0)
			}
		}, wantBalance: 36, wantEffective: 32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newHonest(t)
			tc.apply(v)
			if math.Abs(v.Balance()-tc.wantBalance) > 1e-12 {
				t.Fatalf("balance: got %f want %f", v.Balance(), tc.wantBalance)
			}
			if v.EffectiveBalance() != tc.wantEffective {
				t.Fatalf("effective balance: got %f want %f", v.EffectiveBalance(), tc.wantEffective)
			}
		})
	}
}

func TestBalancesClampedAtZero(t *testing.T) {
	v := newHonest(t)
	v.DecreaseBalance(100)
	if v.Balance() != 0 {
		t.Fatalf("expected clamped balance 0, got %f", v.Balance())
	}
	if v.EffectiveBalance() != 0 {
		t.Fatalf("expected clamped effective balance 0, got %f", v.EffectiveBalance())
	}
	// internal state stays negative, so a small reward does not lift it above zero
	v.IncreaseBalance(10)
	if v.Balance() != 0 {
		t.Fatalf("expected balance still clamped after partial recovery, got %f", v.Balance())
	}
	if got := v.BaseReward(1000); got != 0 {
		t.Fatalf("expected zero base reward with negative effective balance, got %f", got)
	}
}

func TestBaseReward(t *testing.T) {
	v := newHonest(t)
	want := 32.0 * 64 / (4 * math.Sqrt(1024))
	if got := v.BaseReward(1024); math.Abs(got-want) > 1e-12 {
		t.Fatalf("base reward: got %f want %f", got, want)
	}
	if v.BaseReward(0) != v.BaseReward(1) {
		t.Fatal("expected divisor floored at one for degenerate active balance")
	}
	if v.BaseReward(-5) != v.BaseReward(1) {
		t.Fatal("expected negative active balance treated as one")
	}
}

func TestBaseRewardStrictlyDecreasing(t *testing.T) {
	v := newHonest(t)
	prev := v.BaseReward(1)
	for _, total := range []float64{1.5, 2, 10, 100, 1e3, 1e4, 1e6} {
		got := v.BaseReward(total)
		if got >= prev {
			t.Fatalf("expected base reward to fall at total=%f: got %f prev %f", total, got, prev)
		}
		prev = got
	}
}

func TestProposeAndVoteAmounts(t *testing.T) {
	const base, hp, alpha = 8.0, 0.5, 2.0
	sync := base * hp / 32

	honest := newHonest(t)
	honest.Propose(base, hp)
	if want := InitialBalance + base*hp/8 + sync; math.Abs(honest.Balance()-want) > 1e-12 {
		t.Fatalf("honest propose: got %f want %f", honest.Balance(), want)
	}

	malicious, err := New(2, Malicious)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	malicious.Propose(base, hp)
	if want := InitialBalance + sync; math.Abs(malicious.Balance()-want) > 1e-12 {
		t.Fatalf("malicious propose: got %f want %f", malicious.Balance(), want)
	}

	voter := newHonest(t)
	voter.Vote(base, hp, alpha)
	if want := InitialBalance + 27.0/32*base*hp + sync; math.Abs(voter.Balance()-want) > 1e-12 {
		t.Fatalf("honest vote: got %f want %f", voter.Balance(), want)
	}

	slacker, err := New(3, Malicious)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	slacker.Vote(base, hp, alpha)
	if want := InitialBalance - alpha*27.0/32*base*hp + sync; math.Abs(slacker.Balance()-want) > 1e-12 {
		t.Fatalf("malicious vote: got %f want %f", slacker.Balance(), want)
	}
	// 6.75 penalty moves effective balance down 13 quanta, sync reward 0.125 moves nothing
	if slacker.EffectiveBalance() != InitialBalance-13 {
		t.Fatalf("malicious vote effective: got %f want %f", slacker.EffectiveBalance(), InitialBalance-13)
	}
}

func TestZeroAlphaMeansNoVotePenalty(t *testing.T) {
	v, err := New(4, Malicious)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	v.Vote(8, 1, 0)
	if v.Balance() <= InitialBalance {
		t.Fatalf("expected only the sync reward with alpha=0, got %f", v.Balance())
	}
}

func TestRecordSnapshot(t *testing.T) {
	v := newHonest(t)
	v.SetStrategy(Malicious)
	rec := v.Record()
	if rec.ID != 1 || rec.Strategy != Malicious || rec.Balance != InitialBalance || rec.EffectiveBalance != InitialBalance {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
