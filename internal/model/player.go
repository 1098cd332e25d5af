package model

// PlayerID uniquely identifies a player across reconnects
type PlayerID string

// ConnectionID identifies a single transport connection.
// A player may be bound to several connections over its lifetime, one at a time.
type ConnectionID string

// guestPrefixLen is how much of the player id goes into a default display name
const guestPrefixLen = 4

// DefaultDisplayName derives a display name for players who did not supply one
func DefaultDisplayName(id PlayerID) string {
	s := string(id)
	if len(s) > guestPrefixLen {
		s = s[:guestPrefixLen]
	}
	return "Guest" + s
}
