package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mcoot/georally/internal/model"
)

// Player is a logical participant. Its connection handle is replaced on every
// reconnect while the id stays the same.
type Player struct {
	mu sync.Mutex

	id          model.PlayerID
	displayName string
	createdAt   time.Time

	conn      model.ConnectionID
	sessionID model.SessionID
	ready     bool

	// Client-reported progress, echoed back on verification for resume
	path     json.RawMessage
	timeLeft *int
}

func newPlayer(id model.PlayerID, displayName string, now time.Time) *Player {
	if displayName == "" {
		displayName = model.DefaultDisplayName(id)
	}
	return &Player{id: id, displayName: displayName, createdAt: now}
}

// ID returns the stable player id
func (p *Player) ID() model.PlayerID {
	return p.id
}

// DisplayName returns the name shown to opponents
func (p *Player) DisplayName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayName
}

// Connection returns the current connection handle, or empty when disconnected
func (p *Player) Connection() model.ConnectionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Connected reports whether the player has a live connection
func (p *Player) Connected() bool {
	return p.Connection() != ""
}

// SessionID returns the session the player is bound to, or empty
func (p *Player) SessionID() model.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Ready reports whether the player completed the in-game handshake
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Progress returns the last path and remaining time the client reported
func (p *Player) Progress() (json.RawMessage, *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var timeLeft *int
	if p.timeLeft != nil {
		t := *p.timeLeft
		timeLeft = &t
	}
	return append(json.RawMessage(nil), p.path...), timeLeft
}

func (p *Player) rename(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displayName = name
}

func (p *Player) bind(conn model.ConnectionID) model.ConnectionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.conn
	p.conn = conn
	return old
}

// unbind clears the connection only if it is still the current one
func (p *Player) unbind(conn model.ConnectionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return false
	}
	p.conn = ""
	return true
}

func (p *Player) attach(id model.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
	p.ready = false
	p.path = nil
	p.timeLeft = nil
}

// detach clears the session binding only if it still points at id
func (p *Player) detach(id model.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionID != id {
		return
	}
	p.sessionID = ""
	p.ready = false
}

func (p *Player) setReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = true
}

func (p *Player) saveProgress(path json.RawMessage, timeLeft *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = append(json.RawMessage(nil), path...)
	p.timeLeft = timeLeft
}

func (p *Player) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn == "" && p.sessionID == ""
}
