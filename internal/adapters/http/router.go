package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clouddev-platform/auth-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for auth use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers the HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/oauth2/login", handler.federatedLogin)
		r.Post("/refresh", handler.refresh)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/me", handler.me)
			r.Put("/profile", handler.updateProfile)
			r.Post("/password/change", handler.changePassword)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions/{session_id}", handler.revokeSession)
			r.Delete("/sessions", handler.revokeAllSessions)
			r.Get("/login-history", handler.loginHistory)
		})
	})

	return r
}
