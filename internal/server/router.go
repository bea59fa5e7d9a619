package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bluesearch/bluesearch/internal/api"
	"github.com/bluesearch/bluesearch/internal/api/handlers"
	"github.com/bluesearch/bluesearch/internal/api/middleware"
)

type RouterConfig struct {
	QueryHandler *handlers.QueryHandler
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

	r.Get("/status", cfg.QueryHandler.Status)
	r.Get("/passages", cfg.QueryHandler.ListPassages)
	r.Post("/query", cfg.QueryHandler.Query)
	r.Post("/stream-query", cfg.QueryHandler.StreamQuery)
	r.Post("/reset", cfg.QueryHandler.Reset)

	return r
}
