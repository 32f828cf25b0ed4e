package stats

import (
	"errors"
	"math"

	"stakesim/internal/model"
)

// SummarizeEpisode folds an episode's round trace into its summary. The last
// round carries the final state.
func SummarizeEpisode(episode int, seed int64, rounds []model.RoundRecord) model.EpisodeSummary {
	summary := model.EpisodeSummary{Episode: episode, Seed: seed, Rounds: len(rounds)}
	if len(rounds) == 0 {
		return summary
	}
	alphas := make([]float64, 0, len(rounds))
	for _, r := range rounds {
		summary.TotalFeedback += r.Feedback
		alphas = append(alphas, r.Alpha)
	}
	summary.MeanAlpha, _ = Avg(alphas)

	last := rounds[len(rounds)-1]
	summary.Termination = last.Termination
	summary.FinalHonestProportion = last.HonestProportion
	summary.FinalSumOfBalance = last.SumOfBalance
	summary.FinalSumOfEffective = last.SumOfEffectiveBalance
	return summary
}

// IndexEntry condenses a run record into its run index line.
func IndexEntry(run model.RunRecord) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:         run.ID,
		Controller:    run.Controller,
		Rebalancer:    run.Rebalancer,
		NumValidators: run.NumValidators,
		Episodes:      run.Episodes,
		Seed:          run.Seed,
		CreatedAtUTC:  run.CreatedAtUTC,
	}
	hp := make([]float64, 0, len(run.Summaries))
	fb := make([]float64, 0, len(run.Summaries))
	for _, s := range run.Summaries {
		hp = append(hp, s.FinalHonestProportion)
		fb = append(fb, s.TotalFeedback)
	}
	entry.MeanFinalHonestProportion, _ = Avg(hp)
	entry.StdFinalHonestProportion, _ = Std(hp)
	entry.MeanTotalFeedback, _ = Avg(fb)
	return entry
}

func Avg(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New("empty values")
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

func Std(values []float64) (float64, error) {
	mean, err := Avg(values)
	if err != nil {
		return 0, err
	}
	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values))), nil
}
