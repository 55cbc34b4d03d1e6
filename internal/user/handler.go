package user

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"chatwall/internal/platform/middleware"
	"chatwall/internal/transport/http/shared"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

// Handler handles the /api/users endpoints.
type Handler struct {
	users     *Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewHandler(users *Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{users: users, logger: logger, validator: validator}
}

// Register mounts the user routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/me", h.handleMe)
		r.Put("/me", h.handleUpdateMe)
		r.Get("/search", h.handleSearch)
		r.Get("/{id}", h.handleGetByID)
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(middleware.GetUserID(r.Context()))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid subject"))
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u)
}

type updateProfileRequest struct {
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(middleware.GetUserID(r.Context()))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid subject"))
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := validateProfileUpdate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), userID, ProfileUpdate{
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	results := make([]Public, 0, len(users))
	for _, u := range users {
		results = append(results, u.ToPublic())
	}
	shared.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u.ToPublic())
}

func validateProfileUpdate(req updateProfileRequest) error {
	if req.Bio != nil && !govalidator.StringLength(*req.Bio, "0", "300") {
		return dErrors.New(dErrors.CodeInvalidInput, "bio exceeds 300 characters")
	}
	if req.AvatarURL != nil && *req.AvatarURL != "" && !govalidator.IsURL(*req.AvatarURL) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid avatar URL")
	}
	return nil
}
