package storage

import "stakesim/internal/model"

func sampleRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		CreatedAtUTC:    createdAt,
		Seed:            42,
		Episodes:        1,
		Controller:      "constant",
		Rebalancer:      "stake_weighted",
		NumValidators:   10,
		HonestRatio:     0.5,
		InitialAlpha:    1,
		Rounds:          5,
		Summaries: []model.EpisodeSummary{{
			Episode:               0,
			Seed:                  42,
			Rounds:                5,
			Termination:           "rounds_limit",
			FinalHonestProportion: 0.7,
		}},
	}
}

func sampleRounds(n int) []model.RoundRecord {
	out := make([]model.RoundRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.RoundRecord{
			VersionedRecord:  CurrentVersion(),
			Round:            i,
			Alpha:            1,
			HonestProportion: 0.5,
			Terminal:         i == n,
		})
	}
	return out
}
