package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/velada/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every API route.
func NewRouter(s *APIServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/games", func(r chi.Router) {
		r.Get("/", s.ListGamesHandler)
		r.Get("/active", s.ActiveGameHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetGameHandler)
			r.Put("/", s.SaveGameHandler)
			r.Post("/status", s.ChangeStatusHandler)
			r.Post("/tables", s.AddTableHandler)
			r.Put("/tables/{tableId}", s.SaveTableHandler)
			r.Post("/tables/{tableId}/rounds", s.StartRoundHandler)
			r.Post("/tables/{tableId}/hands", s.StartHandHandler)
			r.Post("/tables/{tableId}/hands/score", s.ScoreHandHandler)
			r.Get("/events", s.EventsWSHandler)
		})
	})

	r.Get("/players", s.ListPlayersHandler)
	r.Post("/players", s.SavePlayerHandler)

	return r
}
