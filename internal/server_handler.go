package internal

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and runs the session on the handler's
// goroutine until it ends. The optional "user" query parameter names the
// user (several connections may share it); "room" joins a room right away.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(writer, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	query := request.URL.Query()
	roomKey := strings.TrimSpace(query.Get("room"))
	if roomKey != "" && !s.rooms.Exists(roomKey) {
		http.Error(writer, "unknown room", http.StatusNotFound)
		return
	}
	userID := strings.TrimSpace(query.Get("user"))
	if userID == "" {
		userID = uuid.NewString()
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn("upgrade error", zap.Error(err))
		return
	}

	identity := SessionAndUserID{SessionID: uuid.NewString(), UserID: userID}
	s.runSession(conn, identity, roomKey)
}
