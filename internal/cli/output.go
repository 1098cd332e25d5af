package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// PrintEvent outputs one websocket event as it arrives
func (o *Output) PrintEvent(eventType string, payload json.RawMessage) {
	now := time.Now()

	if o.format == "json" {
		line, _ := json.Marshal(EventLine{Time: now, Type: eventType, Payload: payload})
		fmt.Fprintln(o.w, string(line))
		return
	}

	timestamp := now.Format("15:04:05")
	if len(payload) == 0 || string(payload) == "null" {
		fmt.Fprintf(o.w, "[%s] %s\n", timestamp, eventType)
		return
	}
	fmt.Fprintf(o.w, "[%s] %s: %s\n", timestamp, eventType, string(payload))
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		o.printHealth(v)
	case QueueResult:
		o.printQueue(v)
	case SessionResult:
		o.printSession(v)
	case NeighboursResult:
		o.printNeighbours(v)
	case CoastalResult:
		o.printCoastal(v)
	case PathResult:
		o.printPath(v)
	case GeneratedRound:
		o.printRound(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Players     int    `json:"players"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

// QueueResult response type
type QueueResult struct {
	Waiting map[string]int `json:"waiting"`
	Total   int            `json:"total"`
}

// SessionPlayer response type
type SessionPlayer struct {
	PlayerID     string `json:"player_id"`
	DisplayName  string `json:"display_name"`
	Ready        bool   `json:"ready"`
	Connected    bool   `json:"connected"`
	Reconnecting bool   `json:"reconnecting,omitempty"`
	Vacated      bool   `json:"vacated,omitempty"`
}

// SessionResult response type
type SessionResult struct {
	ID         string          `json:"id"`
	State      string          `json:"state"`
	Difficulty string          `json:"difficulty"`
	Players    []SessionPlayer `json:"players"`
	Winner     *string         `json:"winner"`
	CreatedAt  time.Time       `json:"created_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
}

// NeighboursResult lists the land neighbours of a country
type NeighboursResult struct {
	Country    string   `json:"country"`
	Neighbours []string `json:"neighbours"`
}

// CoastalResult reports whether a country has a coastline
type CoastalResult struct {
	Country string `json:"country"`
	Coastal bool   `json:"coastal"`
}

// PathResult is a shortest land route between two countries
type PathResult struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Reachable bool     `json:"reachable"`
	Path      []string `json:"path,omitempty"`
}

// GeneratedRound is a locally drawn set of round parameters
type GeneratedRound struct {
	Difficulty string  `json:"difficulty"`
	Start      string  `json:"start"`
	Middle     string  `json:"middle"`
	Target     string  `json:"target"`
	Banned     *string `json:"banned"`
}

// EventLine is one websocket event in JSON output
type EventLine struct {
	Time    time.Time       `json:"time"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (o *Output) printHealth(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Players: %d\n", h.Players)
	fmt.Fprintf(o.w, "Sessions: %d\n", h.Sessions)
	fmt.Fprintf(o.w, "Connections: %d\n", h.Connections)
}

func (o *Output) printQueue(q QueueResult) {
	difficulties := make([]string, 0, len(q.Waiting))
	for d := range q.Waiting {
		difficulties = append(difficulties, d)
	}
	sort.Strings(difficulties)

	fmt.Fprintf(o.w, "Waiting: %d\n", q.Total)
	for _, d := range difficulties {
		fmt.Fprintf(o.w, "  %s: %d\n", d, q.Waiting[d])
	}
}

func (o *Output) printSession(s SessionResult) {
	fmt.Fprintf(o.w, "Session: %s\n", s.ID)
	fmt.Fprintf(o.w, "State: %s\n", s.State)
	fmt.Fprintf(o.w, "Difficulty: %s\n", s.Difficulty)
	fmt.Fprintf(o.w, "Players (%d):\n", len(s.Players))
	for _, p := range s.Players {
		var flags []string
		if p.Ready {
			flags = append(flags, "ready")
		}
		if !p.Connected {
			flags = append(flags, "offline")
		}
		if p.Reconnecting {
			flags = append(flags, "reconnecting")
		}
		if p.Vacated {
			flags = append(flags, "left")
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintf(o.w, "  - %s (%s)%s\n", p.DisplayName, p.PlayerID, suffix)
	}
	if s.Winner != nil {
		fmt.Fprintf(o.w, "Winner: %s\n", *s.Winner)
	}
}

func (o *Output) printNeighbours(n NeighboursResult) {
	if len(n.Neighbours) == 0 {
		fmt.Fprintf(o.w, "%s has no land neighbours\n", n.Country)
		return
	}
	fmt.Fprintf(o.w, "%s borders (%d):\n", n.Country, len(n.Neighbours))
	for _, name := range n.Neighbours {
		fmt.Fprintf(o.w, "  - %s\n", name)
	}
}

func (o *Output) printCoastal(c CoastalResult) {
	if c.Coastal {
		fmt.Fprintf(o.w, "%s is coastal\n", c.Country)
	} else {
		fmt.Fprintf(o.w, "%s is landlocked\n", c.Country)
	}
}

func (o *Output) printPath(p PathResult) {
	if !p.Reachable {
		fmt.Fprintf(o.w, "No land route from %s to %s\n", p.From, p.To)
		return
	}
	fmt.Fprintf(o.w, "%s (%d hops)\n", strings.Join(p.Path, " -> "), len(p.Path)-1)
}

func (o *Output) printRound(r GeneratedRound) {
	fmt.Fprintf(o.w, "Difficulty: %s\n", r.Difficulty)
	fmt.Fprintf(o.w, "Start: %s\n", r.Start)
	fmt.Fprintf(o.w, "Middle: %s\n", r.Middle)
	fmt.Fprintf(o.w, "Target: %s\n", r.Target)
	if r.Banned != nil {
		fmt.Fprintf(o.w, "Banned: %s\n", *r.Banned)
	}
}
