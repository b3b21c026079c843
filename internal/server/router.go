package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cairnhq/cairn/internal/api"
	"github.com/cairnhq/cairn/internal/api/handlers"
	"github.com/cairnhq/cairn/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator  middleware.AuthValidator
	ContextHandler *handlers.ContextHandler
	TopicHandler   *handlers.TopicHandler
	AuthHandler    *handlers.AuthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/context", cfg.ContextHandler.Compress)

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", cfg.TopicHandler.List)
			r.Get("/{id}", cfg.TopicHandler.Get)
			r.Get("/{id}/documents", cfg.TopicHandler.ListDocuments)
		})
	})

	r.Post("/tenants", cfg.AuthHandler.CreateTenant)
	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)

	return r
}
