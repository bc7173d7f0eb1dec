package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/clinic-kiosk/internal/http/middleware"
	"github.com/wolfman30/clinic-kiosk/internal/kiosk"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Kiosk              *kiosk.Handler
	MetricsHandler     http.Handler
	MetricsToken       string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Operational endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.Kiosk.Health)
		if cfg.MetricsHandler != nil {
			public.With(requireMetricsToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Kiosk screens
	r.Mount("/", cfg.Kiosk.Routes())

	return r
}
