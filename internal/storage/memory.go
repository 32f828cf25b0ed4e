package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"stakesim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	rounds      map[string][]model.RoundRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.rounds = make(map[string][]model.RoundRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	run.Summaries = append([]model.EpisodeSummary(nil), run.Summaries...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Summaries = append([]model.EpisodeSummary(nil), run.Summaries...)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC == out[j].CreatedAtUTC {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAtUTC > out[j].CreatedAtUTC
	})
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.rounds, id)
	return nil
}

func (s *MemoryStore) SaveRounds(_ context.Context, runID string, rounds []model.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.rounds[runID] = append([]model.RoundRecord(nil), rounds...)
	return nil
}

func (s *MemoryStore) GetRounds(_ context.Context, runID string) ([]model.RoundRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rounds, ok := s.rounds[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.RoundRecord(nil), rounds...), true, nil
}
