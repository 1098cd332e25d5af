package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/georally/internal/api/response"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/session"
)

// SessionFinder looks up live sessions
type SessionFinder interface {
	Session(id model.SessionID) (*session.Session, error)
}

// SessionHandler handles session endpoints
type SessionHandler struct {
	sessions SessionFinder
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionFinder) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		WriteError(w, NewInvalidRequestError("Session id is required"))
		return
	}

	s, err := h.sessions.Session(model.SessionID(id))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionFromSnapshot(s.Snapshot()))
}
