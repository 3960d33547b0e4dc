package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nyayalabs/nyaya/internal/rag"
	"github.com/nyayalabs/nyaya/internal/session"
)

type chatHandler struct {
	pipeline Asker
	sessions Sessions
	logger   *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"` // empty = stateless one-shot
	Question  string `json:"question"`
}

type chatResponse struct {
	SessionID string       `json:"session_id,omitempty"`
	Answer    string       `json:"answer"`
	Refused   bool         `json:"refused"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Model     string       `json:"model,omitempty"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			h.logger.Error("getting session", "id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resolve session")
			return
		}
	}

	answer, err := h.pipeline.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		h.logger.Error("answering question", "session", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to answer question")
		return
	}

	resp := chatResponse{
		Answer:    answer.Text,
		Refused:   answer.Refused,
		Sources:   answer.Sources,
		Model:     answer.Model,
		ElapsedMS: answer.Elapsed.Milliseconds(),
	}
	if sessionID != uuid.Nil {
		resp.SessionID = sessionID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type indexHandler struct {
	indexer Indexer
	logger  *slog.Logger
}

type indexStatusResponse struct {
	Chunks  int                   `json:"chunks"`
	Sources []indexSourceResponse `json:"sources"`
}

type indexSourceResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

func (h *indexHandler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.indexer.Status(r.Context())
	if err != nil {
		h.logger.Error("reading index status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read index status")
		return
	}

	resp := indexStatusResponse{
		Chunks:  status.Chunks,
		Sources: make([]indexSourceResponse, 0, len(status.Sources)),
	}
	for _, src := range status.Sources {
		resp.Sources = append(resp.Sources, indexSourceResponse{Source: src.Source, Chunks: src.Chunks})
	}
	writeJSON(w, http.StatusOK, resp)
}
