package storage

import (
	"context"

	"stakesim/internal/model"
)

// Store persists run metadata and round traces.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveRounds(ctx context.Context, runID string, rounds []model.RoundRecord) error
	GetRounds(ctx context.Context, runID string) ([]model.RoundRecord, bool, error)
}
