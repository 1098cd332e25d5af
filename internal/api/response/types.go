package response

import (
	"time"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/matchmaking"
)

// Health is the response for the health endpoint
type Health struct {
	Status      string `json:"status"`
	Players     int    `json:"players"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

// Queue reports how many players wait in each difficulty bucket
type Queue struct {
	Waiting map[string]int `json:"waiting"`
	Total   int            `json:"total"`
}

// QueueFromSnapshot converts a matchmaking.Snapshot
func QueueFromSnapshot(s matchmaking.Snapshot) Queue {
	waiting := make(map[string]int, len(s.Waiting))
	for d, n := range s.Waiting {
		waiting[string(d)] = n
	}
	return Queue{Waiting: waiting, Total: s.Total}
}

// SessionPlayer represents one player slot of a session
type SessionPlayer struct {
	PlayerID     string `json:"player_id"`
	DisplayName  string `json:"display_name"`
	Ready        bool   `json:"ready"`
	Connected    bool   `json:"connected"`
	Reconnecting bool   `json:"reconnecting,omitempty"`
	Vacated      bool   `json:"vacated,omitempty"`
}

// Session is the public view of a session. Round parameters are deliberately
// left out; clients receive them over their own connection.
type Session struct {
	ID         string          `json:"id"`
	State      string          `json:"state"`
	Difficulty string          `json:"difficulty"`
	Players    []SessionPlayer `json:"players"`
	Winner     *string         `json:"winner"`
	CreatedAt  time.Time       `json:"created_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
}

// SessionFromSnapshot converts model.SessionSnapshot
func SessionFromSnapshot(s model.SessionSnapshot) Session {
	players := make([]SessionPlayer, len(s.Players))
	for i, p := range s.Players {
		players[i] = SessionPlayer{
			PlayerID:     string(p.PlayerID),
			DisplayName:  p.DisplayName,
			Ready:        p.Ready,
			Connected:    p.Connected,
			Reconnecting: p.Reconnecting,
			Vacated:      p.Vacated,
		}
	}

	var winner *string
	if s.Winner != "" {
		w := string(s.Winner)
		winner = &w
	}

	var endedAt *time.Time
	if !s.EndedAt.IsZero() {
		t := s.EndedAt
		endedAt = &t
	}

	return Session{
		ID:         string(s.ID),
		State:      string(s.State),
		Difficulty: string(s.Difficulty),
		Players:    players,
		Winner:     winner,
		CreatedAt:  s.CreatedAt,
		EndedAt:    endedAt,
	}
}
