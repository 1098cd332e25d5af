package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Round operations

func (s *Storage) RecordRound(ctx context.Context, record *model.RoundRecord, delta int) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	key := roundKey(record.SessionID)
	// WATCH the round key so a concurrent record of the same round aborts the EXEC
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.RoundTTL)
			for _, id := range []model.PlayerID{record.Player1ID, record.Player2ID} {
				pipe.SAdd(ctx, playerRoundsIndexKey(id), string(record.SessionID))
			}
			if delta != 0 {
				pipe.IncrBy(ctx, experienceKey(record.WinnerID), int64(delta))
				pipe.IncrBy(ctx, experienceKey(record.LoserID()), int64(-delta))
			}
			return nil
		})
		return err
	}, key)
}

func (s *Storage) GetRound(ctx context.Context, id model.SessionID) (*model.RoundRecord, error) {
	data, err := s.client.Get(ctx, roundKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoundNotFound
		}
		return nil, err
	}

	var record model.RoundRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// RoundsForPlayer returns the ids of every stored round the player took part in
func (s *Storage) RoundsForPlayer(ctx context.Context, id model.PlayerID) ([]model.SessionID, error) {
	members, err := s.client.SMembers(ctx, playerRoundsIndexKey(id)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]model.SessionID, len(members))
	for i, m := range members {
		ids[i] = model.SessionID(m)
	}
	return ids, nil
}

// Experience operations

func (s *Storage) GetExperience(ctx context.Context, id model.PlayerID) (int, error) {
	xp, err := s.client.Get(ctx, experienceKey(id)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return xp, nil
}
