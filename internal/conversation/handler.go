package conversation

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatwall/internal/platform/middleware"
	"chatwall/internal/transport/http/shared"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

// Handler handles the /api/conversations endpoints.
type Handler struct {
	conversations *Service
	logger        *slog.Logger
	validator     middleware.TokenValidator
}

func NewHandler(conversations *Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{conversations: conversations, logger: logger, validator: validator}
}

// Register mounts the conversation routes on the given router.
// unread-count is registered before {id} so chi does not treat it as an id.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/conversations", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreateOrGet)
		r.Get("/unread-count", h.handleUnreadCount)
		r.Get("/{id}", h.handleMessages)
		r.Post("/{id}/messages", h.handleSend)
		r.Put("/{id}/mark-read", h.handleMarkRead)
	})
}

func callerID(r *http.Request) (id.UserID, error) {
	userID, err := id.ParseUserID(middleware.GetUserID(r.Context()))
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid subject")
	}
	return userID, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	summaries, err := h.conversations.List(r.Context(), caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, summaries)
}

type createRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleCreateOrGet(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	otherID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "userId is required"))
		return
	}

	result, err := h.conversations.CreateOrGet(r.Context(), caller, otherID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	shared.WriteJSON(w, status, result)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	convID, err := id.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *id.MessageID
	if raw := r.URL.Query().Get("before"); raw != "" {
		cursor, err := id.ParseMessageID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		before = &cursor
	}

	page, err := h.conversations.Messages(r.Context(), convID, caller, limit, before)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page)
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	convID, err := id.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	message, err := h.conversations.Send(r.Context(), convID, caller, req.Text)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, message)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	count, err := h.conversations.TotalUnread(r.Context(), caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	convID, err := id.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	marked, err := h.conversations.MarkRead(r.Context(), convID, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"markedCount": marked,
	})
}
