package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	session_id  TEXT PRIMARY KEY,
	difficulty  TEXT NOT NULL,
	player1_id  TEXT NOT NULL,
	player2_id  TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS player_experience (
	player_id  TEXT PRIMARY KEY,
	experience INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Storage is a PostgreSQL-backed implementation of the storage interface
type Storage struct {
	db *pgxpool.Pool
}

// New connects to the database at url and makes sure the schema exists
func New(ctx context.Context, url string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	s := NewWithPool(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{db: pool}
}

// EnsureSchema creates the tables if they are missing
func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Close releases the pool
func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) RecordRound(ctx context.Context, record *model.RoundRecord, delta int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO rounds (session_id, difficulty, player1_id, player2_id, winner_id, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		string(record.SessionID), string(record.Difficulty),
		string(record.Player1ID), string(record.Player2ID), string(record.WinnerID),
		record.FinishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if delta != 0 {
		if err := addExperience(ctx, tx, record.WinnerID, delta); err != nil {
			return err
		}
		if err := addExperience(ctx, tx, record.LoserID(), -delta); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Storage) GetRound(ctx context.Context, id model.SessionID) (*model.RoundRecord, error) {
	var (
		record                                  model.RoundRecord
		sessionID, difficulty, p1, p2, winnerID string
	)
	err := s.db.QueryRow(ctx,
		`SELECT session_id, difficulty, player1_id, player2_id, winner_id, finished_at
		 FROM rounds WHERE session_id = $1`,
		string(id),
	).Scan(&sessionID, &difficulty, &p1, &p2, &winnerID, &record.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRoundNotFound
		}
		return nil, err
	}

	record.SessionID = model.SessionID(sessionID)
	record.Difficulty = model.Difficulty(difficulty)
	record.Player1ID = model.PlayerID(p1)
	record.Player2ID = model.PlayerID(p2)
	record.WinnerID = model.PlayerID(winnerID)
	return &record, nil
}

func addExperience(ctx context.Context, tx pgx.Tx, id model.PlayerID, delta int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO player_experience (player_id, experience, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (player_id)
		 DO UPDATE SET experience = player_experience.experience + EXCLUDED.experience,
		               updated_at = now()`,
		string(id), delta,
	)
	return err
}

func (s *Storage) GetExperience(ctx context.Context, id model.PlayerID) (int, error) {
	var xp int
	err := s.db.QueryRow(ctx,
		`SELECT experience FROM player_experience WHERE player_id = $1`,
		string(id),
	).Scan(&xp)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return xp, err
}
