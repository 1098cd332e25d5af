package session

import (
	"fmt"
	"log/slog"

	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
)

// Messages returned to clients whose verification fails
const (
	msgDataMismatch   = "Invalid game data"
	msgNotParticipant = "You are not part of this game"
)

type handlerFunc func(s *Session, cmd Command) (*model.Event, effects, error)

func on[C Command](fn func(s *Session, c C) (*model.Event, effects, error)) handlerFunc {
	return func(s *Session, cmd Command) (*model.Event, effects, error) {
		return fn(s, cmd.(C))
	}
}

// handlers lists the commands each state accepts. Anything else is rejected.
var handlers = map[model.SessionState]map[commandKind]handlerFunc{
	model.SessionStateCreated: {
		kindVerify:       on((*Session).verify),
		kindReconnect:    on((*Session).reconnectPlayer),
		kindDisconnect:   on((*Session).disconnectPlayer),
		kindSaveProgress: on((*Session).saveProgress),
	},
	model.SessionStatePlaying: {
		kindVerify:       on((*Session).verify),
		kindSubmitAnswer: on((*Session).submitAnswer),
		kindFinish:       on((*Session).finish),
		kindReconnect:    on((*Session).reconnectPlayer),
		kindDisconnect:   on((*Session).disconnectPlayer),
		kindSaveProgress: on((*Session).saveProgress),
	},
	model.SessionStateEnded: {
		kindVerify:     on((*Session).verify),
		kindDisconnect: on((*Session).leaveEnded),
		kindLeave:      on((*Session).leave),
	},
}

func invalidVerification(message string) *model.Event {
	ev := model.NewEvent(model.EventRoundVerified, model.RoundVerifiedPayload{
		Invalid:      true,
		ErrorMessage: &message,
	})
	return &ev
}

func (s *Session) verify(c Verify) (*model.Event, effects, error) {
	if s.state == model.SessionStateEnded || c.Round != s.round {
		s.logger.Info("verification mismatch", slog.String("player_id", string(c.PlayerID)))
		return invalidVerification(msgDataMismatch), effects{}, model.ErrStaleParameters
	}

	i := s.slot(c.PlayerID)
	if i < 0 {
		s.logger.Info("verification from non-participant", slog.String("player_id", string(c.PlayerID)))
		return invalidVerification(msgNotParticipant), effects{}, model.ErrNotParticipant
	}

	path, timeLeft := s.players[i].Progress()
	ev := model.NewEvent(model.EventRoundVerified, model.RoundVerifiedPayload{
		Path:     path,
		TimeLeft: timeLeft,
	})
	return &ev, effects{}, nil
}

// submitAnswer judges one hop. The sea crossing check runs first so that two
// coastal countries without a land border can still be accepted. The target
// only feeds the land reachability check.
func (s *Session) submitAnswer(c SubmitAnswer) (*model.Event, effects, error) {
	if s.slot(c.PlayerID) < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}

	rejected := model.NewEvent(model.EventAnswerRejected, model.AnswerRejectedPayload{
		Country:   c.Country,
		Neighbour: c.Neighbour,
	})
	notBanned := c.Neighbour != s.round.Banned
	var kind model.AnswerKind
	switch {
	case s.graph.IsCoastal(c.Country) && s.graph.IsCoastal(c.Neighbour) &&
		!s.graph.CanReachByLand(c.Country, c.Target) &&
		notBanned && c.Country != c.Neighbour:
		kind = model.AnswerKindOverseas
	case s.graph.AreNeighbours(c.Country, c.Neighbour) && notBanned:
		kind = model.AnswerKindGround
	default:
		s.metrics.Answers.WithLabelValues("rejected").Inc()
		return &rejected, effects{}, nil
	}

	s.metrics.Answers.WithLabelValues(string(kind)).Inc()
	ev := model.NewEvent(model.EventAnswerAccepted, model.AnswerAcceptedPayload{
		Country:   c.Country,
		Neighbour: c.Neighbour,
		Kind:      kind,
	})
	return &ev, effects{}, nil
}

func (s *Session) finish(c Finish) (*model.Event, effects, error) {
	if s.slot(c.PlayerID) < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}
	w := s.slot(c.WinnerID)
	if w < 0 {
		return nil, effects{}, fmt.Errorf("winner %s: %w", c.WinnerID, model.ErrNotParticipant)
	}

	outcome := model.RoundOutcomePayload{OpponentMoves: c.Moves}
	s.notify(s.players[w], model.NewEvent(model.EventRoundWon, outcome))
	s.notify(s.players[1-w], model.NewEvent(model.EventRoundLost, outcome))

	s.logger.Info("round finished",
		slog.String("winner_id", string(c.WinnerID)),
		slog.Int("moves", c.Moves),
		slog.String("reason", c.Reason))
	s.end(metrics.OutcomeWon, c.WinnerID)

	return nil, effects{result: &model.RoundResult{
		SessionID:  s.id,
		Difficulty: s.round.Difficulty,
		Player1ID:  s.players[0].ID(),
		Player2ID:  s.players[1].ID(),
		WinnerID:   c.WinnerID,
	}}, nil
}

func (s *Session) disconnectPlayer(c Disconnect) (*model.Event, effects, error) {
	i := s.slot(c.PlayerID)
	if i < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}
	p := s.players[i]
	opponent := s.players[1-i]

	// The client drops its connection while moving from the queue to the round
	if s.state == model.SessionStateCreated && !p.Ready() {
		s.logger.Debug("player disconnected before handshake", slog.String("player_id", string(p.ID())))
		return nil, effects{}, nil
	}
	if _, pending := s.reconnect[p.ID()]; pending {
		return nil, effects{}, nil
	}

	if s.cancelReconnect(opponent.ID()) {
		s.logger.Info("both players disconnected", slog.String("player_id", string(p.ID())))
		s.end(metrics.OutcomeAbandoned, "")
		s.vacate(0)
		s.vacate(1)
		return nil, effects{destroy: true}, nil
	}

	s.notify(opponent, model.NewEvent(model.EventOpponentDisconnected, nil))
	s.armReconnect(p.ID())
	return nil, effects{}, nil
}

func (s *Session) reconnectPlayer(c Reconnect) (*model.Event, effects, error) {
	i := s.slot(c.PlayerID)
	if i < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}
	p := s.players[i]
	opponent := s.players[1-i]

	if s.cancelReconnect(p.ID()) {
		s.logger.Info("player reconnected within grace", slog.String("player_id", string(p.ID())))
		s.notify(opponent, model.NewEvent(model.EventOpponentReconnected, nil))
		if s.state != model.SessionStatePlaying {
			// Still settling, roundStarted has not been sent yet
			s.notify(p, s.handshakeStatus(opponent))
			return nil, effects{}, nil
		}
		s.notify(p, model.NewEvent(model.EventOpponentConnected, nil))
		s.notifyBoth(model.NewEvent(model.EventRoundResumed, nil))
		return nil, effects{}, nil
	}

	if !p.Ready() {
		p.setReady()
		s.logger.Info("player ready", slog.String("player_id", string(p.ID())))
		if !opponent.Ready() {
			s.notify(p, model.NewEvent(model.EventWaitingForOpponent, nil))
			return nil, effects{}, nil
		}
		s.notifyBoth(model.NewEvent(model.EventOpponentConnected, nil))
		if s.state == model.SessionStateCreated && s.settle == nil {
			s.settle = s.schedule(s.timing.SettleDelay, s.onSettled)
		}
		return nil, effects{}, nil
	}

	// Repeated handshake from a player who is already attached
	if s.state == model.SessionStatePlaying {
		s.notify(p, model.NewEvent(model.EventRoundResumed, nil))
	} else {
		s.notify(p, s.handshakeStatus(opponent))
	}
	return nil, effects{}, nil
}

func (s *Session) handshakeStatus(opponent *Player) model.Event {
	if opponent.Ready() {
		return model.NewEvent(model.EventOpponentConnected, nil)
	}
	return model.NewEvent(model.EventWaitingForOpponent, nil)
}

func (s *Session) saveProgress(c SaveProgress) (*model.Event, effects, error) {
	i := s.slot(c.PlayerID)
	if i < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}
	s.players[i].saveProgress(c.Path, c.TimeLeft)
	return nil, effects{}, nil
}

func (s *Session) leaveEnded(c Disconnect) (*model.Event, effects, error) {
	return s.leave(Leave(c))
}

func (s *Session) leave(c Leave) (*model.Event, effects, error) {
	i := s.slot(c.PlayerID)
	if i < 0 {
		return nil, effects{}, model.ErrNotParticipant
	}
	s.vacate(i)
	return nil, effects{destroy: s.vacated[0] && s.vacated[1]}, nil
}
