package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type roomSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Users       int    `json:"users"`
}

type roomDetailResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Users       []string           `json:"users"`
	History     []UserMessageEvent `json:"history"`
}

type transcriptEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleRooms lists every configured room with its live user count.
func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	metas := s.rooms.Rooms()
	out := make([]roomSummary, 0, len(metas))
	for _, meta := range metas {
		room, err := s.rooms.Room(meta.Name)
		if err != nil {
			continue
		}
		out = append(out, roomSummary{
			Name:        meta.Name,
			Description: meta.Description,
			Users:       len(room.UniqueUserIDs()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRoom serves /rooms/{name} and /rooms/{name}/transcript.
func (s *Server) HandleRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rooms/"), "/")
	name, rest, _ := strings.Cut(trimmed, "/")
	room, err := s.rooms.Room(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	switch rest {
	case "":
		users, history := room.Snapshot()
		writeJSON(w, http.StatusOK, roomDetailResponse{
			Name:        name,
			Description: room.Metadata().Description,
			Users:       users,
			History:     history,
		})
	case "transcript":
		s.handleTranscript(w, r, name)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, room string) {
	if s.transcript == nil {
		writeError(w, http.StatusNotFound, errors.New("transcript archive disabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	events, err := s.transcript.ListEvents(r.Context(), room, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]transcriptEntry, 0, len(events))
	for _, event := range events {
		out = append(out, transcriptEntry{
			ID:        event.ID,
			Kind:      event.Kind,
			UserID:    event.UserID,
			Content:   event.Content,
			Status:    event.Status,
			CreatedAt: event.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRoomExists answers 200 or 404 for ?room=, for the client's pre-join
// check.
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.rooms.Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MetricsHandler exposes the prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
