package memory

import (
	"context"
	"sync"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	rounds     map[model.SessionID]model.RoundRecord
	experience map[model.PlayerID]int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rounds:     make(map[model.SessionID]model.RoundRecord),
		experience: make(map[model.PlayerID]int),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Round operations

func (s *Storage) RecordRound(ctx context.Context, record *model.RoundRecord, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[record.SessionID]; ok {
		return nil
	}
	s.rounds[record.SessionID] = *record
	if delta != 0 {
		s.experience[record.WinnerID] += delta
		s.experience[record.LoserID()] -= delta
	}
	return nil
}

func (s *Storage) GetRound(ctx context.Context, id model.SessionID) (*model.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.rounds[id]
	if !ok {
		return nil, model.ErrRoundNotFound
	}
	return &record, nil
}

// Experience operations

// GetExperience returns zero for players with no recorded rounds
func (s *Storage) GetExperience(ctx context.Context, id model.PlayerID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.experience[id], nil
}
