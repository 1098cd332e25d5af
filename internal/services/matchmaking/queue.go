package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/session"
)

// Sessions is the part of the session registry the queue needs
type Sessions interface {
	InLiveSession(id model.PlayerID) bool
	Detach(ctx context.Context, p *session.Player)
	CreateSession(round model.Round, p1, p2 *session.Player) (*session.Session, error)
}

// RoundGenerator draws parameters for a new round
type RoundGenerator interface {
	Generate(difficulty model.Difficulty) (model.Round, error)
}

// Notifier delivers outbound events
type Notifier interface {
	Send(conn model.ConnectionID, event model.Event)
	Broadcast(event model.Event)
}

// Snapshot is the number of waiting players per difficulty
type Snapshot struct {
	Waiting map[model.Difficulty]int
	Total   int
}

// Queue holds waiting players in one FIFO bucket per difficulty and pairs
// the two oldest entries of a bucket as soon as it holds two.
type Queue struct {
	mu      sync.Mutex
	buckets map[model.Difficulty][]*session.Player
	queued  map[model.PlayerID]model.Difficulty
	pairing map[model.PlayerID]struct{}

	sessions  Sessions
	generator RoundGenerator
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an empty queue
func New(sessions Sessions, generator RoundGenerator, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Queue {
	return &Queue{
		buckets:   make(map[model.Difficulty][]*session.Player),
		queued:    make(map[model.PlayerID]model.Difficulty),
		pairing:   make(map[model.PlayerID]struct{}),
		sessions:  sessions,
		generator: generator,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With(slog.String("component", "match_queue")),
	}
}

// Enqueue adds a player to the bucket for difficulty. Joining while already
// queued, being paired, or playing a live round does nothing.
func (q *Queue) Enqueue(ctx context.Context, p *session.Player, difficulty model.Difficulty) error {
	if !difficulty.Valid() {
		return fmt.Errorf("difficulty %q: %w", difficulty, model.ErrValidation)
	}
	if q.busy(p.ID()) {
		q.logger.Debug("duplicate queue join ignored", slog.String("player_id", string(p.ID())))
		return nil
	}
	if q.sessions.InLiveSession(p.ID()) {
		q.logger.Debug("queue join from player in live session ignored", slog.String("player_id", string(p.ID())))
		return nil
	}
	q.sessions.Detach(ctx, p)

	q.mu.Lock()
	if q.busyLocked(p.ID()) {
		q.mu.Unlock()
		return nil
	}
	q.buckets[difficulty] = append(q.buckets[difficulty], p)
	q.queued[p.ID()] = difficulty
	joined := len(q.queued)

	var pair []*session.Player
	if bucket := q.buckets[difficulty]; len(bucket) >= 2 {
		pair = []*session.Player{bucket[0], bucket[1]}
		q.buckets[difficulty] = bucket[2:]
		for _, paired := range pair {
			delete(q.queued, paired.ID())
			q.pairing[paired.ID()] = struct{}{}
		}
	}
	remaining := len(q.queued)
	q.metrics.WaitingPlayers.Set(float64(remaining))
	q.mu.Unlock()

	q.logger.Info("player joined queue",
		slog.String("player_id", string(p.ID())),
		slog.String("difficulty", string(difficulty)))

	q.send(p, model.NewEvent(model.EventJoinedQueue, model.JoinedQueuePayload{PlayerID: p.ID()}))
	q.broadcastCount(joined)

	if pair != nil {
		q.broadcastCount(remaining)
		q.match(difficulty, pair[0], pair[1])
	}
	return nil
}

// match generates a round for two dequeued players and hands them to the registry
func (q *Queue) match(difficulty model.Difficulty, p1, p2 *session.Player) {
	defer func() {
		q.mu.Lock()
		delete(q.pairing, p1.ID())
		delete(q.pairing, p2.ID())
		q.mu.Unlock()
	}()

	round, err := q.generator.Generate(difficulty)
	if err == nil {
		_, err = q.sessions.CreateSession(round, p1, p2)
	}
	if err != nil {
		q.metrics.GenerationFailures.Inc()
		q.logger.Error("failed to start round for pair",
			slog.String("player1_id", string(p1.ID())),
			slog.String("player2_id", string(p2.ID())),
			slog.String("difficulty", string(difficulty)),
			slog.String("error", err.Error()))
		failed := model.NewEvent(model.EventMatchFailed, model.MessagePayload{Message: "Could not start a round, please join again"})
		q.send(p1, failed)
		q.send(p2, failed)
		return
	}

	q.logger.Info("players paired",
		slog.String("player1_id", string(p1.ID())),
		slog.String("player2_id", string(p2.ID())),
		slog.String("difficulty", string(difficulty)))
}

// Remove takes a player out of the queue. It reports whether the player was queued.
func (q *Queue) Remove(p *session.Player) bool {
	q.mu.Lock()
	difficulty, ok := q.queued[p.ID()]
	if !ok {
		q.mu.Unlock()
		return false
	}
	delete(q.queued, p.ID())
	bucket := q.buckets[difficulty]
	for i, waiting := range bucket {
		if waiting.ID() == p.ID() {
			q.buckets[difficulty] = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	remaining := len(q.queued)
	q.metrics.WaitingPlayers.Set(float64(remaining))
	q.mu.Unlock()

	q.logger.Info("player left queue", slog.String("player_id", string(p.ID())))
	q.broadcastCount(remaining)
	return true
}

// Contains reports whether the player is waiting in any bucket
func (q *Queue) Contains(id model.PlayerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[id]
	return ok
}

// Snapshot returns the current waiting counts
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{Waiting: make(map[model.Difficulty]int, len(model.Difficulties))}
	for _, d := range model.Difficulties {
		snap.Waiting[d] = len(q.buckets[d])
	}
	snap.Total = len(q.queued)
	return snap
}

func (q *Queue) busy(id model.PlayerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busyLocked(id)
}

func (q *Queue) busyLocked(id model.PlayerID) bool {
	_, queued := q.queued[id]
	_, pairing := q.pairing[id]
	return queued || pairing
}

func (q *Queue) send(p *session.Player, ev model.Event) {
	if conn := p.Connection(); conn != "" {
		q.notifier.Send(conn, ev)
	}
}

func (q *Queue) broadcastCount(n int) {
	q.notifier.Broadcast(model.NewEvent(model.EventUpdateWaitingCount, model.WaitingCountPayload{N: n}))
}
