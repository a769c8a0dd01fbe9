package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/storage"
)

// MaxAnalysesPerPlayer bounds the analysis history kept per player
const MaxAnalysesPerPlayer = 50

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	stats    map[model.PlayerID]*model.PlayerStats
	applied  map[model.PlayerID]map[model.SessionID]struct{}
	results  map[model.SessionID]*model.SessionResult
	order    []model.SessionID // recording order
	analyses map[model.PlayerID][]*model.Analysis
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		stats:    make(map[model.PlayerID]*model.PlayerStats),
		applied:  make(map[model.PlayerID]map[model.SessionID]struct{}),
		results:  make(map[model.SessionID]*model.SessionResult),
		analyses: make(map[model.PlayerID][]*model.Analysis),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player stats operations

func (s *Storage) GetPlayerStats(ctx context.Context, id model.PlayerID) (*model.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	copied := *stats
	return &copied, nil
}

func (s *Storage) SavePlayerStats(ctx context.Context, stats *model.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *stats
	s.stats[stats.PlayerID] = &copied
	return nil
}

func (s *Storage) ApplyResult(ctx context.Context, id model.PlayerID, result *model.SessionResult) (*model.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[id]
	if !ok {
		stats = &model.PlayerStats{PlayerID: id}
		s.stats[id] = stats
	}
	seen, ok := s.applied[id]
	if !ok {
		seen = make(map[model.SessionID]struct{})
		s.applied[id] = seen
	}
	if _, done := seen[result.SessionID]; !done {
		stats.Record(id, result)
		seen[result.SessionID] = struct{}{}
	}
	copied := *stats
	return &copied, nil
}

// Result operations

func (s *Storage) RecordResult(ctx context.Context, result *model.SessionResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.SessionID]; exists {
		return false, nil
	}
	s.results[result.SessionID] = result
	s.order = append(s.order, result.SessionID)
	return true, nil
}

func (s *Storage) GetResult(ctx context.Context, id model.SessionID) (*model.SessionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return nil, model.ErrResultNotFound
	}
	return result, nil
}

func (s *Storage) ListResults(ctx context.Context, limit int) ([]*model.SessionResult, error) {
	if limit <= 0 {
		return []*model.SessionResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SessionResult, 0, min(limit, len(s.order)))
	for _, id := range slices.Backward(s.order) {
		if len(out) >= limit {
			break
		}
		out = append(out, s.results[id])
	}
	return out, nil
}

// Analysis operations

func (s *Storage) SaveAnalysis(ctx context.Context, analysis *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]*model.Analysis{analysis}, s.analyses[analysis.PlayerID]...)
	if len(list) > MaxAnalysesPerPlayer {
		list = list[:MaxAnalysesPerPlayer]
	}
	s.analyses[analysis.PlayerID] = list
	return nil
}

func (s *Storage) GetAnalyses(ctx context.Context, id model.PlayerID) ([]*model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.analyses[id]), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}
