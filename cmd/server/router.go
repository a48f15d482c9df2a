package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkwatch/vkwatch-api/internal/api"
	apiMiddleware "github.com/vkwatch/vkwatch-api/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	taskHandler := api.NewTaskHandler(app.taskService)
	keywordHandler := api.NewKeywordHandler(app.keywordService)

	r.Route("/api", func(r chi.Router) {
		if app.config.Auth.JWTSecret != "" {
			r.Use(apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret).Authenticate)
		} else {
			app.logger.Warn("auth.jwt_secret is empty; API routes are unauthenticated")
		}

		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/stats", taskHandler.GetStats)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Post("/tasks/{id}/cancel", taskHandler.CancelTask)

		r.Get("/keywords", keywordHandler.ListKeywords)
		r.Post("/keywords", keywordHandler.CreateKeyword)
	})

	r.Handle("/metrics", promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
