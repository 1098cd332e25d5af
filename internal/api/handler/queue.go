package handler

import (
	"net/http"

	"github.com/mcoot/georally/internal/api/response"
	"github.com/mcoot/georally/internal/services/matchmaking"
)

// QueueSnapshotter exposes the waiting counts of the match queue
type QueueSnapshotter interface {
	Snapshot() matchmaking.Snapshot
}

// QueueHandler handles matchmaking queue endpoints
type QueueHandler struct {
	queue QueueSnapshotter
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue QueueSnapshotter) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Get handles GET /queue
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.QueueFromSnapshot(h.queue.Snapshot()))
}
