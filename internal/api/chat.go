package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vulcanlabs/vulcan/internal/integration"
	"github.com/vulcanlabs/vulcan/internal/log"
)

const maxChatBodyBytes = 1 << 20

// CommandProcessor is the slice of the orchestrator the HTTP layer needs.
// *integration.Service satisfies it.
type CommandProcessor interface {
	ProcessCommand(ctx context.Context, cmd integration.Command, emit integration.EmitFunc)
	SwitchKnowledgeBase(ctx context.Context, sessionID, userID, kbID string) (integration.Fragment, error)
	Status() integration.SystemStatus
}

// chatHandler streams orchestrator replies over SSE.
//
// Each fragment becomes one SSE event whose event name is the fragment
// type and whose data is the JSON-encoded fragment, so clients can route
// on the event name without parsing the payload first.
type chatHandler struct {
	svc    CommandProcessor
	logger log.Logger
}

// chatRequest is the POST /api/v1/chat/stream body.
type chatRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	Message         string `json:"message"`
	KnowledgeBaseID string `json:"knowledge_base_id,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// stream handles POST /api/v1/chat/stream.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	uc, ok := userFromContext(r.Context())
	if !ok {
		_ = writeEvent(w, flusher, string(integration.FragmentError), errorBody{
			Error: errorDetail{Code: "unauthorized", Message: "user identity required"},
		})
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, string(integration.FragmentError), errorBody{
			Error: errorDetail{Code: "invalid_request", Message: "invalid request body"},
		})
		return
	}
	if req.Message == "" {
		_ = writeEvent(w, flusher, string(integration.FragmentError), errorBody{
			Error: errorDetail{Code: "invalid_request", Message: "message is required"},
		})
		return
	}

	ctx := r.Context()
	h.logger.Debug("chat stream started",
		"request_id", requestIDFromContext(ctx),
		"session_id", req.SessionID,
		"user_id", uc.UserID,
	)

	cmd := integration.Command{
		SessionID:       req.SessionID,
		UserID:          uc.UserID,
		Text:            req.Message,
		KnowledgeBaseID: req.KnowledgeBaseID,
		MaxResults:      req.MaxResults,
	}

	fragments := 0
	h.svc.ProcessCommand(ctx, cmd, func(f integration.Fragment) error {
		if err := writeEvent(w, flusher, string(f.Type), f); err != nil {
			// Write failure usually means the client disconnected.
			h.logger.Debug("chat stream write failed", "error", err)
			return err
		}
		fragments++
		return nil
	})

	h.logger.Debug("chat stream finished",
		"request_id", requestIDFromContext(ctx),
		"session_id", req.SessionID,
		"fragments", fragments,
	)
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
