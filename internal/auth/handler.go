package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chatwall/internal/auth/device"
	"chatwall/internal/platform/middleware"
	"chatwall/internal/token"
	"chatwall/internal/transport/http/shared"
	"chatwall/internal/user"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

const stateCookieName = "oauth_state"

// Users is the slice of the user directory the login flow needs.
type Users interface {
	FindOrCreateByGoogle(ctx context.Context, profile user.GoogleProfile) (*user.User, error)
	GetByID(ctx context.Context, userID id.UserID) (*user.User, error)
}

// Handler handles the /auth endpoints: the Google OAuth flow, token cookie
// management, and the session introspection endpoint the SPA polls.
type Handler struct {
	google         *GoogleClient
	users          Users
	tokens         *token.JWTService
	logger         *slog.Logger
	frontendOrigin string
	tokenTTL       time.Duration
	production     bool
}

func NewHandler(
	google *GoogleClient,
	users Users,
	tokens *token.JWTService,
	logger *slog.Logger,
	frontendOrigin string,
	tokenTTL time.Duration,
	production bool,
) *Handler {
	return &Handler{
		google:         google,
		users:          users,
		tokens:         tokens,
		logger:         logger,
		frontendOrigin: frontendOrigin,
		tokenTTL:       tokenTTL,
		production:     production,
	}
}

// Register mounts the auth routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", h.handleGoogleLogin)
		r.Get("/google/callback", h.handleGoogleCallback)
		r.Get("/failure", h.handleFailure)
		r.Get("/me", h.handleMe)
		r.Post("/get-jwt", h.handleGetJWT)
		r.Get("/logout", h.handleLogout)
		r.Post("/logout", h.handleLogout)
	})
}

func (h *Handler) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		shared.WriteJSON(w, http.StatusNotImplemented, map[string]string{
			"error":   "Google Auth not configured",
			"message": "Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET",
		})
		return
	}

	state, err := randomState()
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "generate state", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

func (h *Handler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		shared.WriteJSON(w, http.StatusNotImplemented, map[string]string{
			"error": "Google Auth not configured",
		})
		return
	}

	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.logger.WarnContext(ctx, "oauth state mismatch")
		http.Redirect(w, r, "/auth/failure", http.StatusTemporaryRedirect)
		return
	}

	profile, err := h.google.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		h.logger.WarnContext(ctx, "oauth exchange failed", "error", err)
		http.Redirect(w, r, "/auth/failure", http.StatusTemporaryRedirect)
		return
	}

	u, err := h.users.FindOrCreateByGoogle(ctx, profile)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(u.ID, h.tokenTTL)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "issue token", err))
		return
	}

	h.setAuthCookie(w, accessToken)

	h.logger.InfoContext(ctx, "login",
		"user_id", u.ID,
		"email", u.Email,
		"device", device.ParseUserAgent(r.UserAgent()),
	)
	http.Redirect(w, r, h.frontendOrigin+"/dashboard", http.StatusTemporaryRedirect)
}

func (h *Handler) handleFailure(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Auth failed"})
}

// handleMe resolves the caller's identity without failing the request: an
// anonymous caller gets {"user": null} and 200, which the SPA treats as
// logged-out rather than an error.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	tokenString, source := middleware.TokenFromRequest(r)
	if tokenString == "" {
		shared.WriteJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	userID, err := h.tokens.ExtractUserID(tokenString)
	if err != nil {
		shared.WriteJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		shared.WriteJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"user":       u,
		"authSource": source,
	})
}

// handleGetJWT hands the cookie token back as JSON for clients that cannot
// send cookies cross-site and need a Bearer header instead.
func (h *Handler) handleGetJWT(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.AuthCookieName)
	if err != nil || c.Value == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no active session"))
		return
	}
	if _, err := h.tokens.ExtractUserID(c.Value); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid session"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"token": c.Value})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookie(w)
	if r.Method == http.MethodGet {
		http.Redirect(w, r, h.frontendOrigin, http.StatusTemporaryRedirect)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: h.cookieSameSite(),
		MaxAge:   int(h.tokenTTL.Seconds()),
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: h.cookieSameSite(),
		MaxAge:   -1,
	})
}

// cookieSameSite is None in production so the cookie survives the cross-site
// hop between the SPA origin and the API, Lax in development.
func (h *Handler) cookieSameSite() http.SameSite {
	if h.production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
