package wall

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatwall/internal/platform/middleware"
	"chatwall/internal/transport/http/shared"
)

// Handler handles the /api/chat endpoints.
type Handler struct {
	wall      *Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewHandler(wall *Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{wall: wall, logger: logger, validator: validator}
}

// Register mounts the wall routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/history", h.handleHistory)
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.wall.History(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, history)
}
