package server

import (
	"net/http"

	"court-watcher/internal/config"
	"court-watcher/internal/middleware"
	"court-watcher/internal/service"

	"github.com/go-chi/chi/v5"
	corslib "github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Server exposes the read/watch surface over the persisted state. API
// requests may run concurrently with a sync cycle; SQLite's transaction
// isolation keeps reads consistent.
type Server struct {
	availability *service.AvailabilityService
	watches      *service.WatchService
	alerts       *service.AlertService
	cfg          *config.Config
	logger       zerolog.Logger
}

func New(
	availability *service.AvailabilityService,
	watches *service.WatchService,
	alerts *service.AlertService,
	cfg *config.Config,
	logger zerolog.Logger,
) *Server {
	return &Server{
		availability: availability,
		watches:      watches,
		alerts:       alerts,
		cfg:          cfg,
		logger:       logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/locations", s.handleLocations)
		r.Get("/watchers", s.handleListWatchers)
		r.Post("/watchers", s.handleCreateWatcher)
		r.Post("/watchers/{watchID}/toggle", s.handleToggleWatcher)
		r.Delete("/watchers/{watchID}", s.handleDeleteWatcher)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/status", s.handleStatus)
	})

	return r
}
