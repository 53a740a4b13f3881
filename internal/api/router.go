package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/relay/{index}", s.handleSetRelay)
		r.Post("/output/{index}", s.handleSetOutput)
		r.Post("/reset", s.handleReset)

		r.Get("/history", s.handleHistory)
		r.Get("/commands", s.handleCommands)
	})

	return r
}
