package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", s.getSession)

		r.Post("/interact", s.interact)
		r.Post("/pause", s.pause)
		r.Post("/cancel", s.cancel)
		r.Post("/ping", s.ping)
		r.Post("/shutdown", s.shutdown)
		r.Post("/mode", s.setMode)

		// Event streaming (SSE)
		r.Get("/events", s.sessionEvents)
	})
}
