package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/survpanel/survpanel/internal/config"
	"github.com/survpanel/survpanel/internal/panel"
	"github.com/survpanel/survpanel/internal/storage"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, builder *panel.Builder, store storage.RunStore, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		handlers: &Handlers{
			config:  cfg,
			builder: builder,
			store:   store,
			logger:  logger,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1/panel", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handlers.ListRuns)
			r.Post("/", s.handlers.CreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handlers.GetRun)
				r.Delete("/", s.handlers.DeleteRun)
				r.Get("/rows", s.handlers.GetPanelRows)
				r.Get("/rows.csv", s.handlers.DownloadPanelCSV)
				r.Get("/diagnostics", s.handlers.GetDiagnostics)
				r.Get("/plots/{name}.png", s.handlers.GetPlot)
			})
		})
	})
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}
