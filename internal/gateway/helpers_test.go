package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/georally/internal/dependencies/mocks"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/geo"
	"github.com/mcoot/georally/internal/services/matchmaking"
	"github.com/mcoot/georally/internal/services/session"
	"github.com/mcoot/georally/internal/testutil"
)

var fixedRound = model.Round{Start: "Chile", Middle: "Brazil", Target: "Portugal"}

type fixedGenerator struct{}

func (fixedGenerator) Generate(d model.Difficulty) (model.Round, error) {
	r := fixedRound
	r.Difficulty = d
	return r, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordResult(context.Context, model.RoundResult) error { return nil }

type recordingSender struct {
	mu        sync.Mutex
	sent      map[model.ConnectionID][]model.Event
	broadcast []model.Event
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[model.ConnectionID][]model.Event)}
}

func (r *recordingSender) Send(conn model.ConnectionID, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[conn] = append(r.sent[conn], ev)
}

func (r *recordingSender) Broadcast(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, ev)
}

func (r *recordingSender) events(conn model.ConnectionID) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.sent[conn]...)
}

func (r *recordingSender) types(conn model.ConnectionID) []model.EventType {
	var types []model.EventType
	for _, ev := range r.events(conn) {
		types = append(types, ev.Type)
	}
	return types
}

func (r *recordingSender) last(conn model.ConnectionID) model.Event {
	evs := r.events(conn)
	if len(evs) == 0 {
		return model.Event{}
	}
	return evs[len(evs)-1]
}

func gatewayGraph() *geo.Graph {
	g, err := geo.New([]geo.Country{
		{Name: "Argentina", Neighbours: []string{"Bolivia", "Brazil", "Chile"}},
		{Name: "Bolivia", Neighbours: []string{"Brazil", "Chile"}},
		{Name: "Brazil"},
		{Name: "Chile"},
		{Name: "Portugal", Neighbours: []string{"Spain"}},
		{Name: "Spain"},
	}, []string{"Argentina", "Brazil", "Chile", "Portugal", "Spain"})
	if err != nil {
		panic(err)
	}
	return g
}

// stack is the service graph behind a dispatcher, wired to one sender
type stack struct {
	clock    *mocks.MockClock
	metrics  *metrics.Metrics
	registry *session.Registry
	queue    *matchmaking.Queue
}

func newStack(sender matchmaking.Notifier, m *metrics.Metrics) stack {
	logger := testutil.NopLogger()
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	registry := session.NewRegistry(gatewayGraph(), sender, nopRecorder{}, clk, m, session.DefaultTiming(), logger)
	queue := matchmaking.New(registry, fixedGenerator{}, sender, m, logger)
	return stack{clock: clk, metrics: m, registry: registry, queue: queue}
}
