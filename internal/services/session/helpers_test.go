package session

import (
	"context"
	"sync"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/geo"
)

type recordingSender struct {
	mu     sync.Mutex
	events map[model.ConnectionID][]model.Event
}

func newRecordingSender() *recordingSender {
	return &recordingSender{events: make(map[model.ConnectionID][]model.Event)}
}

func (r *recordingSender) Send(conn model.ConnectionID, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[conn] = append(r.events[conn], ev)
}

func (r *recordingSender) types(conn model.ConnectionID) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, 0, len(r.events[conn]))
	for _, ev := range r.events[conn] {
		types = append(types, ev.Type)
	}
	return types
}

func (r *recordingSender) last(conn model.ConnectionID) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[conn]
	if len(evs) == 0 {
		return model.Event{}
	}
	return evs[len(evs)-1]
}

func (r *recordingSender) count(conn model.ConnectionID, t model.EventType) int {
	n := 0
	for _, got := range r.types(conn) {
		if got == t {
			n++
		}
	}
	return n
}

func (r *recordingSender) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[model.ConnectionID][]model.Event)
}

type stubRecorder struct {
	mu      sync.Mutex
	results []model.RoundResult
	err     error
}

func (r *stubRecorder) RecordResult(_ context.Context, result model.RoundResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return r.err
}

func (r *stubRecorder) recorded() []model.RoundResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RoundResult(nil), r.results...)
}

// testGraph has a South American component, an Iberian component and an island
func testGraph() *geo.Graph {
	g, err := geo.New([]geo.Country{
		{Name: "Argentina", Neighbours: []string{"Bolivia", "Brazil", "Chile"}},
		{Name: "Bolivia", Neighbours: []string{"Brazil", "Chile"}},
		{Name: "Brazil"},
		{Name: "Chile"},
		{Name: "Japan"},
		{Name: "Portugal", Neighbours: []string{"Spain"}},
		{Name: "Spain"},
	}, []string{"Argentina", "Brazil", "Chile", "Japan", "Portugal", "Spain"})
	if err != nil {
		panic(err)
	}
	return g
}
