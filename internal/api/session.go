package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nyayalabs/nyaya/internal/session"
)

type sessionHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID.String(),
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := h.sessions.Create(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionResponse(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type sessionDetailResponse struct {
	sessionResponse
	History []exchangeResponse `json:"history"`
}

type exchangeResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// historyWindow bounds how many exchanges the detail endpoint returns.
const historyWindow = 50

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("getting session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	history, err := h.sessions.History(r.Context(), id, historyWindow)
	if err != nil {
		h.logger.Error("loading history", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	resp := sessionDetailResponse{
		sessionResponse: toSessionResponse(sess),
		History:         make([]exchangeResponse, 0, len(history)),
	}
	for _, ex := range history {
		resp.History = append(resp.History, exchangeResponse{Question: ex.Question, Answer: ex.Answer})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("deleting session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
