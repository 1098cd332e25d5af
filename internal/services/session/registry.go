package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/georally/internal/dependencies/clock"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
)

// Registry owns every live session and player, and maps connections to players
type Registry struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	players  map[model.PlayerID]*Player
	conns    map[model.ConnectionID]model.PlayerID

	graph    CountryGraph
	sender   Sender
	recorder Recorder
	clock    clock.Clock
	metrics  *metrics.Metrics
	timing   Timing
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Sessions it creates share the given dependencies.
func NewRegistry(graph CountryGraph, sender Sender, recorder Recorder, clk clock.Clock, m *metrics.Metrics, timing Timing, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[model.SessionID]*Session),
		players:  make(map[model.PlayerID]*Player),
		conns:    make(map[model.ConnectionID]model.PlayerID),
		graph:    graph,
		sender:   sender,
		recorder: recorder,
		clock:    clk,
		metrics:  m,
		timing:   timing,
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// Connect resolves the player for an incoming identity and binds conn to it.
// An empty id reuses the player already bound to conn, or creates a new one.
func (r *Registry) Connect(conn model.ConnectionID, id model.PlayerID, displayName string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		if existing, ok := r.conns[conn]; ok {
			id = existing
		} else {
			id = model.PlayerID(uuid.NewString())
		}
	}

	p, ok := r.players[id]
	if !ok {
		p = newPlayer(id, displayName, r.clock.Now())
		r.players[id] = p
		r.logger.Info("player created",
			slog.String("player_id", string(id)),
			slog.String("display_name", p.DisplayName()))
	} else if displayName != "" {
		p.rename(displayName)
	}

	r.bindLocked(p, conn)
	return p
}

// BindConnection points an existing player at a new connection
func (r *Registry) BindConnection(id model.PlayerID, conn model.ConnectionID) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, model.ErrPlayerNotFound)
	}
	r.bindLocked(p, conn)
	return p, nil
}

func (r *Registry) bindLocked(p *Player, conn model.ConnectionID) {
	if other, ok := r.conns[conn]; ok && other != p.ID() {
		if q, ok := r.players[other]; ok {
			q.unbind(conn)
		}
	}
	if old := p.bind(conn); old != "" && old != conn {
		delete(r.conns, old)
	}
	r.conns[conn] = p.ID()
}

// ReleaseConnection forgets a closed connection. It returns the player only if
// conn was still that player's current connection.
func (r *Registry) ReleaseConnection(conn model.ConnectionID) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	delete(r.conns, conn)

	p, ok := r.players[id]
	if !ok || !p.unbind(conn) {
		return nil, false
	}
	return p, true
}

// LookupByConnection resolves a connection to its player
func (r *Registry) LookupByConnection(conn model.ConnectionID) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	p, ok := r.players[id]
	return p, ok
}

// Player returns a player by id
func (r *Registry) Player(id model.PlayerID) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

// RemovePlayer drops a player that is not bound to any session
func (r *Registry) RemovePlayer(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.SessionID() != "" || r.players[p.ID()] != p {
		return
	}
	if conn := p.Connection(); conn != "" {
		delete(r.conns, conn)
	}
	delete(r.players, p.ID())
	r.logger.Info("player removed", slog.String("player_id", string(p.ID())))
}

// CreateSession registers a new session for two players and announces the round to both
func (r *Registry) CreateSession(round model.Round, p1, p2 *Player) (*Session, error) {
	if p1.ID() == p2.ID() {
		return nil, fmt.Errorf("session needs two distinct players: %w", model.ErrValidation)
	}

	id := model.SessionID(uuid.NewString())
	s := &Session{
		id:        id,
		round:     round,
		players:   [2]*Player{p1, p2},
		state:     model.SessionStateCreated,
		createdAt: r.clock.Now(),
		reconnect: make(map[model.PlayerID]*pendingTimer),
		graph:     r.graph,
		sender:    r.sender,
		recorder:  r.recorder,
		clock:     r.clock,
		metrics:   r.metrics,
		timing:    r.timing,
		logger:    r.logger.With(slog.String("component", "session"), slog.String("session_id", string(id))),
	}
	s.onDestroy = func(id model.SessionID) {
		if err := r.Destroy(id); err != nil {
			r.logger.Warn("session destroy skipped",
				slog.String("session_id", string(id)),
				slog.String("error", err.Error()))
		}
	}

	r.mu.Lock()
	r.sessions[id] = s
	p1.attach(id)
	p2.attach(id)
	r.mu.Unlock()

	r.metrics.SessionsCreated.Inc()
	r.metrics.ActiveSessions.Inc()
	r.logger.Info("session created",
		slog.String("session_id", string(id)),
		slog.String("difficulty", string(round.Difficulty)),
		slog.String("player1_id", string(p1.ID())),
		slog.String("player2_id", string(p2.ID())))

	s.start()
	return s, nil
}

// Session returns a session by id
func (r *Registry) Session(id model.SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, model.ErrSessionNotFound)
	}
	return s, nil
}

// InLiveSession reports whether the player is bound to a session that has not ended
func (r *Registry) InLiveSession(id model.PlayerID) bool {
	r.mu.RLock()
	p, ok := r.players[id]
	var s *Session
	if ok {
		s = r.sessions[p.SessionID()]
	}
	r.mu.RUnlock()

	return s != nil && s.State() != model.SessionStateEnded
}

// Detach releases a player from an ended session so it can queue again
func (r *Registry) Detach(ctx context.Context, p *Player) {
	sid := p.SessionID()
	if sid == "" {
		return
	}
	s, err := r.Session(sid)
	if err != nil {
		p.detach(sid)
		return
	}
	if _, err := s.Handle(ctx, Leave{PlayerID: p.ID()}); err != nil {
		r.logger.Debug("detach skipped",
			slog.String("player_id", string(p.ID())),
			slog.String("error", err.Error()))
	}
}

// Destroy removes an ended session whose slots are both vacated.
// Players left without a connection or session go with it.
func (r *Registry) Destroy(id model.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, model.ErrSessionNotFound)
	}
	if !s.destroyable() {
		return fmt.Errorf("%s: %w", id, model.ErrSessionNotDestroyable)
	}
	delete(r.sessions, id)

	for _, p := range s.players {
		if p.idle() && r.players[p.ID()] == p {
			delete(r.players, p.ID())
		}
	}

	r.metrics.ActiveSessions.Dec()
	r.logger.Info("session destroyed", slog.String("session_id", string(id)))
	return nil
}

// Sweep destroys sessions that ended more than retention ago and drops idle
// players. It returns the number of sessions destroyed.
func (r *Registry) Sweep(retention time.Duration) int {
	cutoff := r.clock.Now().Add(-retention)

	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	destroyed := 0
	for _, s := range candidates {
		if !s.expire(cutoff) {
			continue
		}
		if err := r.Destroy(s.ID()); err == nil {
			destroyed++
		}
	}

	r.mu.Lock()
	for id, p := range r.players {
		if p.idle() {
			delete(r.players, id)
		}
	}
	r.mu.Unlock()

	if destroyed > 0 {
		r.logger.Info("registry swept", slog.Int("sessions_destroyed", destroyed))
	}
	return destroyed
}

// Stats returns the number of registered players and sessions
func (r *Registry) Stats() (players, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players), len(r.sessions)
}
