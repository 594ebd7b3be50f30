package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/api/middleware"
	"github.com/frankmark94/channel-play-pen/internal/channel"
	"github.com/frankmark94/channel-play-pen/internal/config"
	"github.com/frankmark94/channel-play-pen/internal/handlers"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

// Viewers is the websocket endpoint mounted at /ws.
type Viewers interface {
	http.Handler
	Count() int
}

// NewRouter creates and configures the HTTP router. redisStore may be nil.
func NewRouter(
	logger zerolog.Logger,
	cfg *config.Config,
	svc *channel.Service,
	activity *store.ActivityLog,
	redisStore *store.RedisStore,
	viewers Viewers,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	h := handlers.NewHandler(svc, activity, redisStore,
		handlers.WithViewers(viewers),
		handlers.WithMaxWebhookBody(cfg.MaxBodyBytes),
	)

	// Inbound callbacks from the DMS, authenticated by bearer token. They are
	// always answered by the gateway, so no request filtering applies here.
	r.Post("/dms", h.Webhook)

	r.Group(func(r chi.Router) {
		// Security middleware (order matters!)
		r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
		r.Use(middleware.ValidateRequest)

		// Rate limiting
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)

		// CORS - only the console frontend may call the API from a browser
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins(),
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.SessionHeader},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		session := middleware.NewSessionMiddleware(svc)

		// Metrics endpoint (for Prometheus scraping)
		r.Handle("/metrics", promhttp.Handler())

		r.Get("/", h.Root)
		r.Get("/health", h.Health)
		r.Get("/dms", h.WebhookInfo)
		r.Handle("/ws", viewers)

		r.Route("/api", func(r chi.Router) {
			r.Get("/", h.Root)
			r.Get("/health", h.Health)
			r.Get("/status", h.Status)
			r.Get("/activity", h.Activity)
			r.Get("/sessions", h.Sessions)
			r.Get("/stats", h.Stats)

			r.Post("/connect", h.Connect)

			// Calls made against an existing connection
			r.Group(func(r chi.Router) {
				r.Use(session.RequireSession)

				r.Post("/disconnect", h.Disconnect)
				r.Post("/send-message", h.SendMessage)
				r.Post("/typing", h.Typing)
				r.Post("/wait-time", h.WaitTime)
				r.Post("/end-session", h.EndSession)
			})
		})
	})

	return r
}
