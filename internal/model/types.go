package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one batch of episodes driven by a single controller.
type RunRecord struct {
	VersionedRecord
	ID            string           `json:"id"`
	CreatedAtUTC  string           `json:"created_at_utc"`
	Seed          int64            `json:"seed"`
	Episodes      int              `json:"episodes"`
	Controller    string           `json:"controller"`
	Rebalancer    string           `json:"rebalancer"`
	NumValidators int              `json:"num_validators"`
	HonestRatio   float64          `json:"honest_ratio"`
	InitialAlpha  float64          `json:"initial_alpha"`
	Rounds        int              `json:"rounds"`
	Summaries     []EpisodeSummary `json:"summaries"`
}

type EpisodeSummary struct {
	Episode               int     `json:"episode"`
	Seed                  int64   `json:"seed"`
	Rounds                int     `json:"rounds"`
	Termination           string  `json:"termination"`
	TotalFeedback         float64 `json:"total_feedback"`
	MeanAlpha             float64 `json:"mean_alpha"`
	FinalHonestProportion float64 `json:"final_honest_proportion"`
	FinalSumOfBalance     float64 `json:"final_sum_of_balance"`
	FinalSumOfEffective   float64 `json:"final_sum_of_effective_balance"`
}

// RoundRecord is one emitted step of an episode.
type RoundRecord struct {
	VersionedRecord
	Episode               int     `json:"episode"`
	Round                 int     `json:"round"`
	Alpha                 float64 `json:"alpha"`
	Feedback              float64 `json:"feedback"`
	Terminal              bool    `json:"terminal"`
	Termination           string  `json:"termination,omitempty"`
	Flips                 int     `json:"flips"`
	SumOfBalance          float64 `json:"sum_of_balance"`
	SumOfEffectiveBalance float64 `json:"sum_of_effective_balance"`
	HonestProportion      float64 `json:"honest_proportion"`
}
