/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, copied into the request logger
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. hlog:       zerolog logger in the request context plus access log
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Request count and latency per route pattern
  6. CORS:       Cross-origin requests for the frontend
  7. Principal:  Authenticated email from the identity proxy header

ROUTE GROUPS:
  /api/weeks/{offset}/*   Week grid and mutations
  /api/leave              Leave blocks
  /api/holidays/{year}    Holiday calendar
  /api/drafts, /api/me    Landing page data
  /healthz                Liveness and store reachability
  /metrics                Prometheus exposition

SECURITY NOTE:
  The API trusts the principal header. It must only be reachable through
  the authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(h.opts.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", h.opts.PrincipalHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(PrincipalFromHeader(h.opts.PrincipalHeader))

		r.Route("/weeks/{offset}", func(r chi.Router) {
			r.Get("/", h.GetWeek)
			r.Put("/hours", h.EnterHours)
			r.Post("/draft", h.SaveDraft)
			r.Post("/submit", h.SubmitWeek)
			r.Post("/reset", h.ResetWeek)
		})

		r.Route("/leave", func(r chi.Router) {
			r.Get("/", h.ListLeave)
			r.Post("/", h.RegisterLeave)
			r.Delete("/", h.DeleteLeave)
		})

		r.Get("/holidays/{year}", h.ListHolidays)
		r.Get("/drafts", h.ListDrafts)
		r.Get("/me", h.GetProfile)
	})

	return r
}

// requestIDLogger adds chi's request ID to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
