package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatwall/internal/auth"
	"chatwall/internal/conversation"
	"chatwall/internal/platform/middleware"
	"chatwall/internal/realtime"
	"chatwall/internal/transport/http/shared"
	"chatwall/internal/user"
	"chatwall/internal/wall"
)

// Deps carries everything the router mounts.
type Deps struct {
	Auth          *auth.Handler
	Users         *user.Handler
	Conversations *conversation.Handler
	Wall          *wall.Handler
	Gateway       *realtime.Gateway

	FrontendOrigin string
	Logger         *slog.Logger
}

// NewRouter assembles the full HTTP surface: REST handlers, the websocket
// endpoint, and the operational endpoints.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.FrontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	d.Auth.Register(r)
	d.Users.Register(r)
	d.Conversations.Register(r)
	d.Wall.Register(r)

	// Websocket handshakes carry their own credential; auth middleware
	// would reject the query-parameter form, so the gateway checks itself.
	r.Get("/ws", d.Gateway.HandleWS)

	return r
}
