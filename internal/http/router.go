package http

import (
	"log/slog"
	"net/http"
	"time"

	"firedocs/backend/internal/config"
	"firedocs/backend/internal/export"
	"firedocs/backend/internal/handlers"
	"firedocs/backend/internal/httpjson"
	"firedocs/backend/internal/logging"
	"firedocs/backend/internal/middleware"
	"firedocs/backend/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Cfg config.Config
	// AuthClient nil leaves /v1 open in development and closed otherwise.
	// Pass an untyped nil, not a nil *auth.Client.
	AuthClient middleware.TokenVerifier
	Store      *store.Store
	Exporter   *export.Exporter
	Metrics    http.Handler
	Logger     *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	docs := handlers.NewDocuments(d.Store, d.Exporter, logger)

	r.Route("/v1/collections/{collection}", func(pr chi.Router) {
		authOn := d.AuthClient != nil
		switch {
		case authOn:
			pr.Use(middleware.WithAuth(d.AuthClient))
		case d.Cfg.IsDevelopment():
			logger.Warn("auth disabled for /v1 routes")
		default:
			pr.Use(denyAll)
		}

		pr.Get("/documents", docs.List)
		pr.Post("/documents", docs.Insert)
		pr.Get("/documents/{id}", docs.Get)
		pr.Patch("/documents/{id}", docs.Update)
		pr.Patch("/documents/{id}/fields", docs.UpdateFields)
		pr.Post("/batch-update", docs.BatchUpdate)

		if authOn {
			pr.With(middleware.RequireAdmin).Post("/export", docs.Export)
		} else {
			pr.Post("/export", docs.Export)
		}
	})

	return r
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusUnauthorized, "authentication is not configured")
	})
}
