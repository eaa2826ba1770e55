package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/livetutor/internal/transcript"
	"github.com/MrWong99/livetutor/pkg/device"
)

type sessionResponse struct {
	Active     bool      `json:"active"`
	SessionID  string    `json:"session_id,omitempty"`
	TopicID    string    `json:"topic_id,omitempty"`
	TopicTitle string    `json:"topic_title,omitempty"`
	State      string    `json:"state,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

type entryResponse struct {
	ID          string    `json:"id"`
	TurnID      string    `json:"turn_id"`
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	Translation *string   `json:"translation"`
	At          time.Time `json:"at"`
}

type topicResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toSessionResponse(info SessionInfo) sessionResponse {
	if info.SessionID == "" {
		return sessionResponse{}
	}
	return sessionResponse{
		Active:     true,
		SessionID:  info.SessionID,
		TopicID:    info.TopicID,
		TopicTitle: info.TopicTitle,
		State:      info.State.String(),
		StartedAt:  info.StartedAt,
	}
}

func toEntryResponses(entries []transcript.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		r := entryResponse{
			ID:     e.ID,
			TurnID: e.TurnID,
			Role:   string(e.Role),
			Text:   e.Text,
			At:     e.At,
		}
		if e.Translated {
			tr := e.Translation
			r.Translation = &tr
		}
		out = append(out, r)
	}
	return out
}

// handleSession serves GET /session.
func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(a.sessions.Info()))
}

// handleStartSession serves POST /session?topic=<id>.
func (a *App) handleStartSession(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topic")
	if topicID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "topic is required"})
		return
	}
	info, err := a.sessions.StartTopic(r.Context(), topicID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, toSessionResponse(info))
	case errors.Is(err, ErrUnknownTopic):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, device.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
}

// handleStopSession serves DELETE /session.
func (a *App) handleStopSession(w http.ResponseWriter, r *http.Request) {
	err := a.sessions.Stop(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrNoSession):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// handleTranscript serves GET /session/transcript.
func (a *App) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toEntryResponses(a.sessions.Transcript()))
}

// handleJournal serves GET /journal/{session}.
func (a *App) handleJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := a.journal.Entries(r.Context(), r.PathValue("session"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// handleTopics serves GET /topics.
func (a *App) handleTopics(w http.ResponseWriter, _ *http.Request) {
	topics := a.sessions.Topics()
	out := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		out = append(out, topicResponse{ID: t.ID, Title: t.Title})
	}
	writeJSON(w, http.StatusOK, out)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
