package session

import (
	"encoding/json"

	"github.com/mcoot/georally/internal/model"
)

type commandKind string

const (
	kindVerify       commandKind = "verify"
	kindSubmitAnswer commandKind = "submitAnswer"
	kindFinish       commandKind = "finish"
	kindDisconnect   commandKind = "disconnect"
	kindReconnect    commandKind = "reconnect"
	kindSaveProgress commandKind = "saveProgress"
	kindLeave        commandKind = "leave"
)

// Command is an inbound event addressed to a session
type Command interface {
	kind() commandKind
}

// Verify checks client-held round parameters against the session
type Verify struct {
	PlayerID model.PlayerID
	Round    model.Round
}

// SubmitAnswer proposes a hop from Country to Neighbour on the way to Target
type SubmitAnswer struct {
	PlayerID  model.PlayerID
	Country   string
	Neighbour string
	Target    string
}

// Finish reports that WinnerID completed the route in Moves moves
type Finish struct {
	PlayerID model.PlayerID // Reporting player
	WinnerID model.PlayerID
	Moves    int
	Reason   string
}

// Disconnect reports that a player's connection dropped
type Disconnect struct {
	PlayerID model.PlayerID
}

// Reconnect reports that a player is (re)attached to the session
type Reconnect struct {
	PlayerID model.PlayerID
}

// SaveProgress caches the client's path and remaining time
type SaveProgress struct {
	PlayerID model.PlayerID
	Path     json.RawMessage
	TimeLeft *int
}

// Leave vacates a player's slot in an ended session
type Leave struct {
	PlayerID model.PlayerID
}

func (Verify) kind() commandKind       { return kindVerify }
func (SubmitAnswer) kind() commandKind { return kindSubmitAnswer }
func (Finish) kind() commandKind       { return kindFinish }
func (Disconnect) kind() commandKind   { return kindDisconnect }
func (Reconnect) kind() commandKind    { return kindReconnect }
func (SaveProgress) kind() commandKind { return kindSaveProgress }
func (Leave) kind() commandKind        { return kindLeave }
