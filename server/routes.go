package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *api) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler { return withLogging(a.log, a.metrics, next) })
	r.Use(middleware.Recoverer)
	r.Use(a.identify)

	r.Get("/api/health", a.handleHealth)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Auth endpoints
	r.Post("/api/auth/register", a.withRateLimit("auth", 20, time.Minute, a.handleRegister))
	r.Post("/api/auth/login", a.withRateLimit("auth", 30, time.Minute, a.handleLogin))
	r.With(a.requireAuth).Get("/api/auth/me", a.handleMe)
	r.With(a.requireAdmin).Get("/api/admin/users", a.handleAdminListUsers)

	r.Route("/api/cards", func(r chi.Router) {
		r.Get("/", a.handleListCards)
		r.Get("/events", a.handleCardEvents)
		r.With(a.requireAuth).Post("/", a.handleCreateCard)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGetCard)
			r.Get("/events", a.handleCardEvents)
			r.With(a.requireAuth).Put("/", a.handleUpdateCard)
			r.With(a.requireAuth).Patch("/", a.handleUpdateCard)
			r.With(a.requireAuth).Delete("/", a.handleDeleteCard)

			r.Get("/comments", a.handleCommentsByCard)
			r.With(a.requireAuth).Post("/comments", a.handleAddComment)
			r.With(a.requireAuth).Put("/comments/{commentID}", a.handleEditComment)
			r.With(a.requireAuth).Patch("/comments/{commentID}", a.handleEditComment)
			r.With(a.requireAuth).Delete("/comments/{commentID}", a.handleDeleteComment)
		})
	})
	return r
}
