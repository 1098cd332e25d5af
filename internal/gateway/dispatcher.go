package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/matchmaking"
	"github.com/mcoot/georally/internal/services/session"
)

// Sender delivers outbound events to a connection
type Sender interface {
	Send(conn model.ConnectionID, event model.Event)
}

// Dispatcher turns inbound frames into queue and session operations and
// sends replies back to the issuing connection.
type Dispatcher struct {
	registry *session.Registry
	queue    *matchmaking.Queue
	sender   Sender
	decoder  *decoder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(registry *session.Registry, queue *matchmaking.Queue, sender Sender, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queue:    queue,
		sender:   sender,
		decoder:  newDecoder(),
		metrics:  m,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

type handler func(d *Dispatcher, ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error)

var routes = map[string]handler{
	TypeJoinQueue:     (*Dispatcher).joinQueue,
	TypeVerifyRound:   (*Dispatcher).verifyRound,
	TypeSubmitAnswer:  (*Dispatcher).submitAnswer,
	TypeReconnect:     (*Dispatcher).reconnect,
	TypeRoundFinished: (*Dispatcher).roundFinished,
	TypeSaveProgress:  (*Dispatcher).saveProgress,
	TypeLeaveRound:    (*Dispatcher).leaveRound,
}

// Dispatch handles one inbound frame from conn
func (d *Dispatcher) Dispatch(ctx context.Context, conn model.ConnectionID, frame []byte) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		d.logger.Warn("malformed frame dropped",
			slog.String("connection_id", string(conn)),
			slog.String("error", err.Error()))
		return
	}

	route, ok := routes[msg.Type]
	if !ok {
		d.logger.Warn("unknown event type dropped",
			slog.String("connection_id", string(conn)),
			slog.String("type", msg.Type))
		return
	}
	d.metrics.InboundEvents.WithLabelValues(msg.Type).Inc()

	reply, err := route(d, ctx, conn, msg.Payload)
	if reply != nil {
		d.sender.Send(conn, *reply)
	}
	if err == nil {
		return
	}

	logger := d.logger.With(
		slog.String("connection_id", string(conn)),
		slog.String("type", msg.Type),
		slog.String("error", err.Error()))
	if reply != nil {
		logger.Info("event answered with rejection")
		return
	}
	if ev, ok := errorEvent(err); ok {
		logger.Info("event rejected")
		d.sender.Send(conn, ev)
		return
	}
	if errors.Is(err, model.ErrValidation) {
		logger.Warn("invalid event dropped")
		return
	}
	logger.Debug("event ignored")
}

// Disconnected handles a closed connection
func (d *Dispatcher) Disconnected(ctx context.Context, conn model.ConnectionID) {
	p, ok := d.registry.ReleaseConnection(conn)
	if !ok {
		return
	}

	if d.queue.Remove(p) {
		d.registry.RemovePlayer(p)
		return
	}

	sid := p.SessionID()
	if sid == "" {
		d.registry.RemovePlayer(p)
		return
	}
	s, err := d.registry.Session(sid)
	if err != nil {
		d.registry.RemovePlayer(p)
		return
	}
	if _, err := s.Handle(ctx, session.Disconnect{PlayerID: p.ID()}); err != nil {
		d.logger.Debug("disconnect ignored",
			slog.String("player_id", string(p.ID())),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) joinQueue(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req JoinQueueRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	p := d.registry.Connect(conn, req.PlayerID, req.DisplayName)
	return nil, d.queue.Enqueue(ctx, p, req.Difficulty)
}

func (d *Dispatcher) verifyRound(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req VerifyRoundRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	s, err := d.registry.Session(req.SessionID)
	if err != nil {
		message := "Invalid game data"
		ev := model.NewEvent(model.EventRoundVerified, model.RoundVerifiedPayload{Invalid: true, ErrorMessage: &message})
		return &ev, err
	}
	return s.Handle(ctx, session.Verify{PlayerID: req.PlayerID, Round: req.Round()})
}

func (d *Dispatcher) submitAnswer(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req SubmitAnswerRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	p, s, err := d.resolve(conn, req.SessionID)
	if err != nil {
		return nil, err
	}
	return s.Handle(ctx, session.SubmitAnswer{
		PlayerID:  p.ID(),
		Country:   req.Country,
		Neighbour: req.Neighbour,
		Target:    req.TargetCountry,
	})
}

// reconnect restores the identity named in the request on this connection
func (d *Dispatcher) reconnect(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req ReconnectRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	s, err := d.registry.Session(req.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.HasPlayer(req.PlayerID) {
		return nil, model.ErrNotParticipant
	}
	if _, err := d.registry.BindConnection(req.PlayerID, conn); err != nil {
		return nil, err
	}
	return s.Handle(ctx, session.Reconnect{PlayerID: req.PlayerID})
}

func (d *Dispatcher) roundFinished(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req RoundFinishedRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	p, s, err := d.resolve(conn, req.SessionID)
	if err != nil {
		return nil, err
	}
	return s.Handle(ctx, session.Finish{
		PlayerID: p.ID(),
		WinnerID: req.PlayerID,
		Moves:    req.MoveCount,
		Reason:   req.Reason,
	})
}

func (d *Dispatcher) saveProgress(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req SaveProgressRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	p, s, err := d.resolve(conn, req.SessionID)
	if err != nil {
		return nil, err
	}
	return s.Handle(ctx, session.SaveProgress{PlayerID: p.ID(), Path: req.Path, TimeLeft: req.TimeLeft})
}

func (d *Dispatcher) leaveRound(ctx context.Context, conn model.ConnectionID, raw json.RawMessage) (*model.Event, error) {
	var req LeaveRoundRequest
	if err := d.decoder.decode(raw, &req); err != nil {
		return nil, err
	}
	p, s, err := d.resolve(conn, req.SessionID)
	if err != nil {
		return nil, err
	}
	return s.Handle(ctx, session.Leave{PlayerID: p.ID()})
}

// resolve finds the player bound to conn and the session it addresses
func (d *Dispatcher) resolve(conn model.ConnectionID, sid model.SessionID) (*session.Player, *session.Session, error) {
	p, ok := d.registry.LookupByConnection(conn)
	if !ok {
		return nil, nil, model.ErrPlayerNotFound
	}
	s, err := d.registry.Session(sid)
	if err != nil {
		return nil, nil, err
	}
	return p, s, nil
}
