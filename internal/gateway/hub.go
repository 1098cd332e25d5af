package gateway

import (
	"log/slog"
	"sync"

	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
)

// Hub tracks open connections and delivers outbound events to them
type Hub struct {
	mu      sync.RWMutex
	clients map[model.ConnectionID]*client

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub creates an empty hub
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[model.ConnectionID]*client),
		metrics: m,
		logger:  logger.With(slog.String("component", "hub")),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.ConnectedClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	if ok {
		h.metrics.ConnectedClients.Dec()
	}
	c.close()
}

// Send queues an event for one connection. Unknown connections are ignored.
func (h *Hub) Send(conn model.ConnectionID, ev model.Event) {
	frame, err := encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("event for closed connection dropped",
			slog.String("connection_id", string(conn)),
			slog.String("type", string(ev.Type)))
		return
	}
	c.enqueue(frame)
}

// Broadcast queues an event for every open connection
func (h *Hub) Broadcast(ev model.Event) {
	frame, err := encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(frame)
	}
}

// Len returns the number of open connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
