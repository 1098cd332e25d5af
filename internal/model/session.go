package model

import "time"

// SessionID uniquely identifies a game session. Ids are never reused.
type SessionID string

// SessionState represents the lifecycle phase of a session
type SessionState string

const (
	SessionStateCreated SessionState = "created" // Waiting for both players to complete the handshake
	SessionStatePlaying SessionState = "playing" // Round in progress
	SessionStateEnded   SessionState = "ended"   // Terminal
)

// Difficulty selects the matchmaking bucket and round rules
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the difficulties players may queue for
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of the known difficulties
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ExperienceDelta is the experience awarded to the winner of a round
// (and taken from the loser) at this difficulty
func (d Difficulty) ExperienceDelta() int {
	switch d {
	case DifficultyEasy:
		return 5
	case DifficultyMedium:
		return 15
	case DifficultyHard:
		return 30
	default:
		return 0
	}
}

// Round holds the server-authoritative parameters of a puzzle.
// Banned is empty when no country is banned.
type Round struct {
	Difficulty Difficulty
	Start      string
	Middle     string
	Target     string
	Banned     string
}

// HasBanned reports whether the round bans an intermediate country
func (r Round) HasBanned() bool {
	return r.Banned != ""
}

// RoundResult is what a finished session reports to the persistence collaborator
type RoundResult struct {
	SessionID  SessionID
	Difficulty Difficulty
	Player1ID  PlayerID
	Player2ID  PlayerID
	WinnerID   PlayerID
}

// LoserID returns the participant who did not win, or empty if the winner is not a participant
func (r RoundResult) LoserID() PlayerID {
	switch r.WinnerID {
	case r.Player1ID:
		return r.Player2ID
	case r.Player2ID:
		return r.Player1ID
	default:
		return ""
	}
}

// RoundRecord is a stored round outcome
type RoundRecord struct {
	SessionID  SessionID  `json:"session_id"`
	Difficulty Difficulty `json:"difficulty"`
	Player1ID  PlayerID   `json:"player1_id"`
	Player2ID  PlayerID   `json:"player2_id"`
	WinnerID   PlayerID   `json:"winner_id"`
	FinishedAt time.Time  `json:"finished_at"`
}

// LoserID returns the participant who did not win
func (r RoundRecord) LoserID() PlayerID {
	if r.WinnerID == r.Player1ID {
		return r.Player2ID
	}
	return r.Player1ID
}

// SessionSnapshot is a read-only view of a session
type SessionSnapshot struct {
	ID         SessionID
	State      SessionState
	Difficulty Difficulty
	Players    [2]SlotSnapshot
	Winner     PlayerID
	CreatedAt  time.Time
	EndedAt    time.Time
}

// SlotSnapshot describes one player slot of a session
type SlotSnapshot struct {
	PlayerID     PlayerID
	DisplayName  string
	Ready        bool
	Connected    bool
	Reconnecting bool
	Vacated      bool
}
