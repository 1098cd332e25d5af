package model

import "encoding/json"

// EventType identifies an outbound event. Values are the wire names.
type EventType string

const (
	// Queue events
	EventJoinedQueue        EventType = "joinedQueue"
	EventUpdateWaitingCount EventType = "updateWaitingCount"
	EventMatchFailed        EventType = "matchFailed"

	// Round setup events
	EventRoundStart         EventType = "roundStart"
	EventRoundVerified      EventType = "roundVerified"
	EventWaitingForOpponent EventType = "waitingForOpponent"
	EventOpponentConnected  EventType = "opponentConnected"
	EventRoundStarted       EventType = "roundStarted"
	EventRoundCancelled     EventType = "roundCancelled"

	// Play events
	EventAnswerAccepted EventType = "answerAccepted"
	EventAnswerRejected EventType = "answerRejected"
	EventRoundWon       EventType = "roundWon"
	EventRoundLost      EventType = "roundLost"

	// Connection events
	EventOpponentDisconnected EventType = "opponentDisconnected"
	EventOpponentReconnected  EventType = "opponentReconnected"
	EventRoundResumed         EventType = "roundResumed"
	EventOpponentLeft         EventType = "opponentLeft"

	EventError EventType = "error"
)

// Event is an outbound message addressed to one connection or broadcast to all
type Event struct {
	Type    EventType
	Payload any // Type-specific data, nil for bare notifications
}

// NewEvent creates an event with a payload
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

// JoinedQueuePayload confirms a queue join and tells the client its player id
type JoinedQueuePayload struct {
	PlayerID PlayerID `json:"playerId"`
}

// WaitingCountPayload carries the number of players waiting across all buckets
type WaitingCountPayload struct {
	N int `json:"n"`
}

// MessagePayload carries a human-readable message
type MessagePayload struct {
	Message string `json:"message"`
}

// RoundStartPayload is sent to each paired player when a session is created
type RoundStartPayload struct {
	SessionID    SessionID  `json:"sessionId"`
	Start        string     `json:"start"`
	Middle       string     `json:"middle"`
	Target       string     `json:"target"`
	Banned       *string    `json:"banned"`
	Difficulty   Difficulty `json:"difficulty"`
	PlayerID     PlayerID   `json:"playerId"`
	OpponentName string     `json:"opponentName"`
}

// RoundVerifiedPayload answers a verification request.
// Path and TimeLeft carry the player's cached progress on success.
type RoundVerifiedPayload struct {
	Invalid      bool            `json:"invalid"`
	ErrorMessage *string         `json:"errorMessage"`
	Path         json.RawMessage `json:"path,omitempty"`
	TimeLeft     *int            `json:"timeLeft,omitempty"`
}

// AnswerKind tells how an accepted hop was judged
type AnswerKind string

const (
	AnswerKindGround   AnswerKind = "ground"
	AnswerKindOverseas AnswerKind = "overseas"
)

// AnswerAcceptedPayload reports an accepted hop
type AnswerAcceptedPayload struct {
	Country   string     `json:"country"`
	Neighbour string     `json:"neighbour"`
	Kind      AnswerKind `json:"kind"`
}

// AnswerRejectedPayload reports a rejected hop
type AnswerRejectedPayload struct {
	Country   string `json:"country"`
	Neighbour string `json:"neighbour"`
}

// RoundOutcomePayload is sent to both players when a round is finished
type RoundOutcomePayload struct {
	OpponentMoves int `json:"opponentMoves"`
}

// ErrorPayload describes a rejected inbound event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BannedPtr converts an optional banned country to its wire form
func BannedPtr(banned string) *string {
	if banned == "" {
		return nil
	}
	return &banned
}
