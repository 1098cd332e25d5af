package results

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcoot/georally/internal/dependencies/clock"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/storage"
)

// Service records finished rounds and keeps experience totals in step
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a results service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "results")),
	}
}

// RecordResult stores the round, awarding the winner the difficulty's
// experience delta and taking the same amount from the loser in one write.
func (s *Service) RecordResult(ctx context.Context, result model.RoundResult) error {
	if result.WinnerID != result.Player1ID && result.WinnerID != result.Player2ID {
		return fmt.Errorf("winner %s did not play round %s: %w", result.WinnerID, result.SessionID, model.ErrValidation)
	}

	record := &model.RoundRecord{
		SessionID:  result.SessionID,
		Difficulty: result.Difficulty,
		Player1ID:  result.Player1ID,
		Player2ID:  result.Player2ID,
		WinnerID:   result.WinnerID,
		FinishedAt: s.clock.Now(),
	}
	delta := result.Difficulty.ExperienceDelta()
	loser := result.LoserID()
	if err := s.storage.RecordRound(ctx, record, delta); err != nil {
		return fmt.Errorf("record round %s: %w: %w", result.SessionID, model.ErrPersistenceFailure, err)
	}

	s.logger.Info("round recorded",
		slog.String("session_id", string(result.SessionID)),
		slog.String("winner_id", string(result.WinnerID)),
		slog.String("loser_id", string(loser)),
		slog.Int("experience_delta", delta))
	return nil
}

// GetExperience returns a player's experience total
func (s *Service) GetExperience(ctx context.Context, id model.PlayerID) (int, error) {
	return s.storage.GetExperience(ctx, id)
}

// GetRound returns a stored round
func (s *Service) GetRound(ctx context.Context, id model.SessionID) (*model.RoundRecord, error) {
	return s.storage.GetRound(ctx, id)
}
