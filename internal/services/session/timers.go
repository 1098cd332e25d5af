package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/georally/internal/dependencies/clock"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
)

// pendingTimer is a scheduled callback stamped with a generation number.
// A callback whose stamp no longer matches the stored timer does nothing,
// which makes a stop that races with an already-fired timer harmless.
type pendingTimer struct {
	gen   uint64
	timer clock.Timer
}

func (t *pendingTimer) stop() {
	if t != nil {
		t.timer.Stop()
	}
}

// schedule arms fire after d. Expects mu to be held.
func (s *Session) schedule(d time.Duration, fire func(gen uint64) effects) *pendingTimer {
	s.timerSeq++
	gen := s.timerSeq
	t := &pendingTimer{gen: gen}
	t.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		fx := fire(gen)
		s.mu.Unlock()
		s.apply(context.Background(), fx)
	})
	return t
}

func (s *Session) armReconnect(id model.PlayerID) {
	s.reconnect[id] = s.schedule(s.timing.ReconnectGrace, func(gen uint64) effects {
		return s.onReconnectExpired(id, gen)
	})
	s.logger.Info("reconnect timer armed",
		slog.String("player_id", string(id)),
		slog.Duration("grace", s.timing.ReconnectGrace))
}

// cancelReconnect stops a pending reconnect timer and reports whether one existed
func (s *Session) cancelReconnect(id model.PlayerID) bool {
	t, ok := s.reconnect[id]
	if !ok {
		return false
	}
	t.stop()
	delete(s.reconnect, id)
	return true
}

func (s *Session) onReconnectExpired(id model.PlayerID, gen uint64) effects {
	t, ok := s.reconnect[id]
	if !ok || t.gen != gen {
		return effects{}
	}
	delete(s.reconnect, id)
	if s.state == model.SessionStateEnded {
		return effects{}
	}

	i := s.slot(id)
	s.logger.Info("reconnect grace expired", slog.String("player_id", string(id)))
	s.notify(s.players[1-i], model.NewEvent(model.EventOpponentLeft, nil))
	s.end(metrics.OutcomeForfeit, "")
	s.vacate(i)
	return effects{}
}

func (s *Session) onSettled(gen uint64) effects {
	if s.settle == nil || s.settle.gen != gen {
		return effects{}
	}
	s.settle = nil
	if s.state != model.SessionStateCreated {
		return effects{}
	}

	s.state = model.SessionStatePlaying
	s.handshake.stop()
	s.handshake = nil
	s.logger.Info("session playing")
	s.notifyBoth(model.NewEvent(model.EventRoundStarted, nil))
	return effects{}
}

func (s *Session) onHandshakeTimeout(gen uint64) effects {
	if s.handshake == nil || s.handshake.gen != gen {
		return effects{}
	}
	s.handshake = nil
	if s.state != model.SessionStateCreated {
		return effects{}
	}

	s.logger.Warn("handshake timed out")
	s.notifyBoth(model.NewEvent(model.EventRoundCancelled, nil))
	s.end(metrics.OutcomeCancelled, "")
	return effects{}
}
