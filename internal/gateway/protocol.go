package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mcoot/georally/internal/model"
)

// Inbound event names
const (
	TypeJoinQueue     = "joinQueue"
	TypeVerifyRound   = "verifyRound"
	TypeSubmitAnswer  = "submitAnswer"
	TypeReconnect     = "reconnect"
	TypeRoundFinished = "roundFinished"
	TypeSaveProgress  = "saveProgress"
	TypeLeaveRound    = "leaveRound"
)

// Message is the envelope for every frame in both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinQueueRequest asks to wait for an opponent. PlayerID restores a known identity.
type JoinQueueRequest struct {
	Difficulty  model.Difficulty `json:"difficulty" validate:"required,oneof=easy medium hard"`
	PlayerID    model.PlayerID   `json:"playerId,omitempty" validate:"omitempty,max=64"`
	DisplayName string           `json:"displayName,omitempty" validate:"omitempty,max=32"`
}

// VerifyRoundRequest checks the client's copy of the round parameters
type VerifyRoundRequest struct {
	SessionID  model.SessionID  `json:"sessionId" validate:"required"`
	PlayerID   model.PlayerID   `json:"playerId" validate:"required"`
	Start      string           `json:"start" validate:"required"`
	Middle     string           `json:"middle" validate:"required"`
	Target     string           `json:"target" validate:"required"`
	Banned     *string          `json:"banned"`
	Difficulty model.Difficulty `json:"difficulty" validate:"required"`
}

// Round converts the request into round parameters
func (r VerifyRoundRequest) Round() model.Round {
	round := model.Round{
		Difficulty: r.Difficulty,
		Start:      r.Start,
		Middle:     r.Middle,
		Target:     r.Target,
	}
	if r.Banned != nil {
		round.Banned = *r.Banned
	}
	return round
}

// SubmitAnswerRequest proposes one hop
type SubmitAnswerRequest struct {
	SessionID     model.SessionID `json:"sessionId" validate:"required"`
	Country       string          `json:"country" validate:"required"`
	Neighbour     string          `json:"neighbour" validate:"required"`
	TargetCountry string          `json:"targetCountry" validate:"required"`
}

// ReconnectRequest binds the connection to a player in a session
type ReconnectRequest struct {
	SessionID model.SessionID `json:"sessionId" validate:"required"`
	PlayerID  model.PlayerID  `json:"playerId" validate:"required"`
}

// RoundFinishedRequest reports the winner of a round
type RoundFinishedRequest struct {
	SessionID model.SessionID `json:"sessionId" validate:"required"`
	PlayerID  model.PlayerID  `json:"playerId" validate:"required"`
	MoveCount int             `json:"moveCount" validate:"gte=0"`
	Reason    string          `json:"reason,omitempty" validate:"max=200"`
}

// SaveProgressRequest caches the client's progress for resume
type SaveProgressRequest struct {
	SessionID model.SessionID `json:"sessionId" validate:"required"`
	Path      json.RawMessage `json:"path"`
	TimeLeft  *int            `json:"timeLeft,omitempty" validate:"omitempty,gte=0"`
}

// LeaveRoundRequest gives up the slot in a finished round
type LeaveRoundRequest struct {
	SessionID model.SessionID `json:"sessionId" validate:"required"`
}

// decoder unmarshals and validates inbound payloads
type decoder struct {
	validate *validator.Validate
}

func newDecoder() *decoder {
	return &decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (d *decoder) decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload: %w", model.ErrValidation)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if err := d.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s failed %s: %w", verrs[0].Field(), verrs[0].Tag(), model.ErrValidation)
		}
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	return nil
}

// encode renders an outbound event as a wire frame
func encode(ev model.Event) ([]byte, error) {
	return json.Marshal(struct {
		Type    model.EventType `json:"type"`
		Payload any             `json:"payload,omitempty"`
	}{Type: ev.Type, Payload: ev.Payload})
}

// Error codes sent in error events
const (
	CodeNotParticipant  = "NOT_PARTICIPANT"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodePlayerNotFound  = "PLAYER_NOT_FOUND"
)

// errorEvent maps an error to a client-visible error event. Errors the client
// is not told about return false.
func errorEvent(err error) (model.Event, bool) {
	var code string
	switch {
	case errors.Is(err, model.ErrNotParticipant):
		code = CodeNotParticipant
	case errors.Is(err, model.ErrSessionNotFound):
		code = CodeSessionNotFound
	case errors.Is(err, model.ErrPlayerNotFound):
		code = CodePlayerNotFound
	default:
		return model.Event{}, false
	}
	return model.NewEvent(model.EventError, model.ErrorPayload{Code: code, Message: err.Error()}), true
}
