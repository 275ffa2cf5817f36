package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/chat-moderator/internal/chatlog"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

const dateLayout = "2006-01-02"

// Archiver uploads one conversation day to long-term storage.
type Archiver interface {
	Enabled() bool
	ArchiveDay(ctx context.Context, conversationID string, day time.Time) (string, error)
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	User           string `json:"user"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is returned for every handled message.
type ChatResponse struct {
	ConversationID string               `json:"conversation_id"`
	Response       string               `json:"response"`
	IsAnomaly      bool                 `json:"is_anomaly"`
	Reason         string               `json:"reason"`
	AnomalyReason  string               `json:"anomaly_reason"`
	Analysis       moderation.Analysis  `json:"analysis"`
	Responses      moderation.Responses `json:"responses"`
	Cleared        bool                 `json:"cleared"`
}

// Handler serves the chat HTTP API.
type Handler struct {
	service       *Service
	store         chatlog.Store
	archiver      Archiver
	assistantName string
	logger        *logging.Logger
}

func NewHandler(service *Service, store chatlog.Store, archiver Archiver, assistantName string, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:       service,
		store:         store,
		archiver:      archiver,
		assistantName: assistantName,
		logger:        logger,
	}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	convID := moderation.NormalizeConversationID(req.ConversationID)
	res, err := h.service.Submit(r.Context(), convID, req.User, req.Message)
	if errors.Is(err, ErrMissingFields) {
		h.writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if err != nil {
		h.logger.Error("failed to handle chat message", "conversation_id", convID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: convID,
		Response:       res.ViewerResponse,
		IsAnomaly:      res.Verdict.IsAnomaly,
		Reason:         res.Verdict.Reason,
		AnomalyReason:  res.Verdict.Reason,
		Analysis:       res.Verdict.Analysis,
		Responses:      res.Verdict.Responses,
		Cleared:        res.Cleared,
	})
}

// History handles GET /chat/history. The date defaults to today (UTC).
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	convID := moderation.NormalizeConversationID(r.URL.Query().Get("conversation_id"))
	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if h.store == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"messages": []chatlog.HistoryMessage{}})
		return
	}

	entries, err := h.store.ListDay(r.Context(), convID, day)
	if err != nil {
		h.logger.Error("failed to load chat history", "conversation_id", convID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": chatlog.History(entries, h.assistantName)})
}

// Reset handles POST /chat/reset. An empty body resets the default
// conversation.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		User           string `json:"user"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	convID := moderation.NormalizeConversationID(req.ConversationID)
	res := h.service.Reset(r.Context(), convID, req.User)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"response":        res.ViewerResponse,
		"cleared":         true,
	})
}

// Archive handles POST /admin/archive.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil || !h.archiver.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
		Date           string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	day, err := parseDay(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	convID := moderation.NormalizeConversationID(req.ConversationID)
	key, err := h.archiver.ArchiveDay(r.Context(), convID, day)
	if err != nil {
		h.logger.Error("failed to archive chat log", "conversation_id", convID, "day", day.Format(dateLayout), "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to archive chat log")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"conversation_id": convID, "key": key})
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(dateLayout, raw)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
