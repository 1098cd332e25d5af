package storage

import (
	"context"

	"github.com/mcoot/georally/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// RecordRound stores a finished round, adds delta to the winner's
	// experience and takes it from the loser, all or nothing. Recording a
	// round that is already stored changes nothing.
	RecordRound(ctx context.Context, record *model.RoundRecord, delta int) error
	GetRound(ctx context.Context, id model.SessionID) (*model.RoundRecord, error)

	GetExperience(ctx context.Context, id model.PlayerID) (int, error)
}
