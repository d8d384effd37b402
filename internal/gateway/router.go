package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the full HTTP surface: the OpenAI-compatible
// completion routes, the gateway's own operational API, and the
// admin-key-gated management API.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware([]string{"*"}))
	r.Use(securityHeadersMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(requestLoggerMiddleware(s))
	r.Use(maxBodySizeMiddleware(s.Config.MaxBodyBytes))

	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics.Handler().ServeHTTP)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(authMiddleware(s))
		v1.Post("/chat/completions", s.ChatCompletions)
		v1.Post("/embeddings", s.Embeddings)
		v1.Get("/models", s.Models)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(authMiddleware(s))
		api.Get("/providers", s.Providers)
		api.Get("/cache/stats", s.CacheStatsHandler)
		api.Post("/cache/invalidate", s.CacheInvalidate)
		api.Get("/circuit-breakers", s.CircuitBreakers)
		api.Get("/budget", s.Budget)
		api.Get("/analytics", s.Analytics)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(adminAuthMiddleware(s))
			admin.Get("/keys", s.AdminListKeys)
			admin.Post("/keys", s.AdminCreateKey)
			admin.Delete("/keys/{key}", s.AdminRevokeKey)
			admin.Get("/routing", s.AdminGetRouting)
			admin.Put("/routing", s.AdminUpdateRouting)
		})
	})

	return r
}
