package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new chi router with all parser endpoints
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	// middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// basic cors
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// health check
	r.Get("/health", handler.Health)

	// auth flow
	r.Route("/auth", func(r chi.Router) {
		r.Post("/send-code", handler.SendCode)
		r.Post("/verify-code", handler.VerifyCode)
		r.Post("/verify-2fa", handler.VerifyPassword)
	})

	// ingestion
	r.Post("/sync", handler.StartSync)
	r.Post("/stats", handler.GetStats)

	return r
}
