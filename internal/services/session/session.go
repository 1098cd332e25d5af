package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/georally/internal/dependencies/clock"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
)

const recordTimeout = 5 * time.Second

// CountryGraph is the subset of graph queries used to judge answers
type CountryGraph interface {
	IsCoastal(name string) bool
	AreNeighbours(a, b string) bool
	CanReachByLand(a, b string) bool
}

// Sender delivers an outbound event to a connection. It must not block.
type Sender interface {
	Send(conn model.ConnectionID, event model.Event)
}

// Recorder persists finished round results
type Recorder interface {
	RecordResult(ctx context.Context, result model.RoundResult) error
}

// Timing holds the durations that drive session timers
type Timing struct {
	ReconnectGrace   time.Duration
	SettleDelay      time.Duration
	HandshakeTimeout time.Duration
}

// DefaultTiming returns the standard durations
func DefaultTiming() Timing {
	return Timing{
		ReconnectGrace:   30 * time.Second,
		SettleDelay:      4 * time.Second,
		HandshakeTimeout: 2 * time.Minute,
	}
}

// Session is one two-player round. All state changes happen under mu, so
// commands and timer callbacks for a session are processed one at a time.
type Session struct {
	mu sync.Mutex

	id        model.SessionID
	round     model.Round
	players   [2]*Player
	vacated   [2]bool
	state     model.SessionState
	winner    model.PlayerID
	createdAt time.Time
	endedAt   time.Time

	reconnect map[model.PlayerID]*pendingTimer
	settle    *pendingTimer
	handshake *pendingTimer
	timerSeq  uint64

	graph     CountryGraph
	sender    Sender
	recorder  Recorder
	clock     clock.Clock
	metrics   *metrics.Metrics
	timing    Timing
	logger    *slog.Logger
	onDestroy func(model.SessionID)
}

// effects are side effects that run after the session lock is released
type effects struct {
	result  *model.RoundResult
	destroy bool
}

// ID returns the session id
func (s *Session) ID() model.SessionID {
	return s.id
}

// Round returns the authoritative round parameters
func (s *Session) Round() model.Round {
	return s.round
}

// Players returns both players in slot order
func (s *Session) Players() [2]*Player {
	return s.players
}

// State returns the current lifecycle state
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasPlayer reports whether the player holds one of the two slots
func (s *Session) HasPlayer(id model.PlayerID) bool {
	return s.slot(id) >= 0
}

// Snapshot returns a read-only view of the session
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.SessionSnapshot{
		ID:         s.id,
		State:      s.state,
		Difficulty: s.round.Difficulty,
		Winner:     s.winner,
		CreatedAt:  s.createdAt,
		EndedAt:    s.endedAt,
	}
	for i, p := range s.players {
		_, reconnecting := s.reconnect[p.ID()]
		snap.Players[i] = model.SlotSnapshot{
			PlayerID:     p.ID(),
			DisplayName:  p.DisplayName(),
			Ready:        p.Ready(),
			Connected:    p.Connected(),
			Reconnecting: reconnecting,
			Vacated:      s.vacated[i],
		}
	}
	return snap
}

// Handle processes one command. The returned event, if any, is the reply for
// the connection that issued the command.
func (s *Session) Handle(ctx context.Context, cmd Command) (*model.Event, error) {
	s.mu.Lock()
	handler, ok := handlers[s.state][cmd.kind()]
	if !ok {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("command rejected for state",
			slog.String("command", string(cmd.kind())),
			slog.String("state", string(state)))
		if state == model.SessionStateEnded {
			return nil, fmt.Errorf("%s: %w", cmd.kind(), model.ErrSessionEnded)
		}
		return nil, fmt.Errorf("%s in state %s: %w", cmd.kind(), state, model.ErrInvalidState)
	}

	reply, fx, err := handler(s, cmd)
	s.mu.Unlock()

	s.apply(ctx, fx)
	return reply, err
}

// start announces the round to both players and arms the handshake timeout
func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handshake = s.schedule(s.timing.HandshakeTimeout, s.onHandshakeTimeout)

	for i, p := range s.players {
		opponent := s.players[1-i]
		s.notify(p, model.NewEvent(model.EventRoundStart, model.RoundStartPayload{
			SessionID:    s.id,
			Start:        s.round.Start,
			Middle:       s.round.Middle,
			Target:       s.round.Target,
			Banned:       model.BannedPtr(s.round.Banned),
			Difficulty:   s.round.Difficulty,
			PlayerID:     p.ID(),
			OpponentName: opponent.DisplayName(),
		}))
	}
}

// destroyable reports whether the session may be removed from the registry
func (s *Session) destroyable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == model.SessionStateEnded && s.vacated[0] && s.vacated[1]
}

// expire vacates every slot of an ended session that finished before cutoff
func (s *Session) expire(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.SessionStateEnded || s.endedAt.After(cutoff) {
		return false
	}
	for i := range s.players {
		s.vacate(i)
	}
	return true
}

func (s *Session) apply(ctx context.Context, fx effects) {
	if fx.result != nil {
		recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
		err := s.recorder.RecordResult(recordCtx, *fx.result)
		cancel()
		if err != nil {
			s.metrics.ResultRecordFailures.Inc()
			s.logger.Error("failed to record round result",
				slog.String("winner_id", string(fx.result.WinnerID)),
				slog.String("error", err.Error()))
		}
	}
	if fx.destroy && s.onDestroy != nil {
		s.onDestroy(s.id)
	}
}

// slot does not need mu: the players array never changes after creation
func (s *Session) slot(id model.PlayerID) int {
	for i, p := range s.players {
		if p.ID() == id {
			return i
		}
	}
	return -1
}

// The helpers below expect mu to be held.

func (s *Session) notify(p *Player, ev model.Event) {
	if conn := p.Connection(); conn != "" {
		s.sender.Send(conn, ev)
	}
}

func (s *Session) notifyBoth(ev model.Event) {
	for _, p := range s.players {
		s.notify(p, ev)
	}
}

func (s *Session) vacate(i int) {
	if s.vacated[i] {
		return
	}
	s.vacated[i] = true
	s.players[i].detach(s.id)
}

// end moves the session to ended and cancels every pending timer
func (s *Session) end(outcome string, winner model.PlayerID) {
	s.state = model.SessionStateEnded
	s.winner = winner
	s.endedAt = s.clock.Now()

	for id, t := range s.reconnect {
		t.stop()
		delete(s.reconnect, id)
	}
	s.settle.stop()
	s.settle = nil
	s.handshake.stop()
	s.handshake = nil

	s.metrics.SessionsEnded.WithLabelValues(outcome).Inc()
	s.logger.Info("session ended",
		slog.String("outcome", outcome),
		slog.String("winner_id", string(winner)))
}
