package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vulcanlabs/vulcan/internal/backend/knowledge"
	"github.com/vulcanlabs/vulcan/internal/integration"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// sessionHandler serves session CRUD and knowledge-base selection.
type sessionHandler struct {
	store   *session.Store
	catalog integration.Catalog
	svc     CommandProcessor
	logger  log.Logger
}

// sessionSummary is the list-view projection of a session. Messages are
// omitted; clients fetch them per session.
type sessionSummary struct {
	SessionID       string         `json:"session_id"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActivity    time.Time      `json:"last_activity"`
	KnowledgeBaseID string         `json:"knowledge_base_id,omitempty"`
	Status          session.Status `json:"status"`
	MessageCount    int            `json:"message_count"`
}

func summarize(s *session.Session) sessionSummary {
	return sessionSummary{
		SessionID:       s.ID,
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity,
		KnowledgeBaseID: s.KnowledgeBaseID,
		Status:          s.Status,
		MessageCount:    len(s.Messages),
	}
}

// list handles GET /api/v1/sessions. ?active=true filters to live sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	sessions := h.store.List(r.Context(), uc.UserID, activeOnly)

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, summarize(s))
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries}, h.logger)
}

// create handles POST /api/v1/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	var req struct {
		KnowledgeBaseID string `json:"knowledge_base_id,omitempty"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	// An empty body creates a session with no knowledge base bound.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	sess := h.store.Create(r.Context(), uc.UserID, req.KnowledgeBaseID)
	if sess == nil {
		writeError(w, http.StatusInternalServerError, "session_error", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(sess), h.logger)
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	sess := h.store.Get(r.Context(), r.PathValue("id"), uc.UserID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summarize(sess), h.logger)
}

// messages handles GET /api/v1/sessions/{id}/messages.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	sess := h.store.Get(r.Context(), r.PathValue("id"), uc.UserID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}

	msgs := sess.Messages
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   msgs,
	}, h.logger)
}

// archive handles DELETE /api/v1/sessions/{id}. Sessions are archived,
// not destroyed, so their history stays exportable.
func (h *sessionHandler) archive(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	if !h.store.Archive(r.Context(), r.PathValue("id"), uc.UserID) {
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// cleanup handles POST /api/v1/sessions/cleanup: an operational sweep
// that eagerly expires the caller's stale sessions instead of waiting
// for lazy expiry on read.
func (h *sessionHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	expired := h.store.CleanupExpired(r.Context(), uc.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired}, h.logger)
}

// switchKnowledgeBase handles POST /api/v1/sessions/{id}/knowledge-base.
func (h *sessionHandler) switchKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	var req struct {
		KnowledgeBaseID string `json:"knowledge_base_id"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.KnowledgeBaseID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "knowledge_base_id is required", h.logger)
		return
	}

	frag, err := h.svc.SwitchKnowledgeBase(r.Context(), r.PathValue("id"), uc.UserID, req.KnowledgeBaseID)
	switch {
	case errors.Is(err, integration.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "knowledge base not found", h.logger)
		return
	case err != nil:
		h.logger.Error("knowledge base switch failed",
			"session_id", r.PathValue("id"),
			"knowledge_base_id", req.KnowledgeBaseID,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, "backend_error", "failed to switch knowledge base", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, frag, h.logger)
}

// listKnowledgeBases handles GET /api/v1/knowledge-bases.
func (h *sessionHandler) listKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	uc, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	bases, err := h.catalog.ListForUser(r.Context(), uc.UserID)
	if err != nil {
		h.logger.Error("knowledge base listing failed", "user_id", uc.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "backend_error", "failed to list knowledge bases", h.logger)
		return
	}
	if bases == nil {
		bases = []knowledge.KnowledgeBase{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"knowledge_bases": bases}, h.logger)
}
