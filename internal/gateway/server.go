package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/georally/internal/model"
)

// Server upgrades HTTP requests to websocket connections and runs them
type Server struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates a websocket endpoint. An empty allowedOrigins accepts any origin.
func NewServer(hub *Hub, dispatcher *Dispatcher, allowedOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With(slog.String("component", "gateway")),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP runs one connection until it closes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := model.ConnectionID(uuid.NewString())
	c := newClient(id, conn, s.logger)
	s.hub.register(c)
	s.logger.Info("connection opened",
		slog.String("connection_id", string(id)),
		slog.String("remote_addr", r.RemoteAddr))

	go c.writePump()

	ctx := r.Context()
	defer func() {
		s.hub.unregister(c)
		s.dispatcher.Disconnected(context.WithoutCancel(ctx), id)
		s.logger.Info("connection closed", slog.String("connection_id", string(id)))
	}()

	c.readPump(func(frame []byte) {
		s.dispatcher.Dispatch(ctx, id, frame)
	})
}
