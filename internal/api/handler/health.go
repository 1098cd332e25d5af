package handler

import (
	"net/http"

	"github.com/mcoot/georally/internal/api/response"
)

// Stats reports registry sizes
type Stats interface {
	Stats() (players, sessions int)
}

// Connections reports the number of open client connections
type Connections interface {
	Len() int
}

// HealthHandler handles the health endpoint
type HealthHandler struct {
	stats Stats
	conns Connections
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(stats Stats, conns Connections) *HealthHandler {
	return &HealthHandler{stats: stats, conns: conns}
}

// Get handles GET /health
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	players, sessions := h.stats.Stats()
	response.JSON(w, http.StatusOK, response.Health{
		Status:      "ok",
		Players:     players,
		Sessions:    sessions,
		Connections: h.conns.Len(),
	})
}
