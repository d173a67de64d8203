package httpapi

import (
	"database/sql"
	"net/http"
	"time"

	"research/backend/internal/config"
	"research/backend/internal/llm"
	"research/backend/internal/logging"
	"research/backend/internal/metrics"
	"research/backend/internal/runlog"
	"research/backend/internal/search"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const upstreamTimeout = 90 * time.Second

// NewRouter wires the production dependencies. db may be nil when the run
// log is disabled.
func NewRouter(cfg config.Config, db *sql.DB, logger *zap.Logger) http.Handler {
	httpClient := &http.Client{Timeout: upstreamTimeout}

	deps := Deps{Completers: NewCompleterFactory(cfg, httpClient, logger)}

	searcher, err := search.New(cfg, httpClient)
	if err != nil {
		logger.Error("search client disabled", zap.Error(err))
	} else {
		deps.Searcher = searcher
	}
	if db != nil {
		deps.Runs = runlog.NewStore(db)
	}
	if cfg.OpenRouterAPIKey != "" {
		deps.Models = llm.NewOpenRouterClient(cfg, httpClient)
	}

	return newRouter(NewHandler(cfg, logger, deps), logger)
}

func newRouter(h Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Type", headerResearchStatus, headerResearchRunID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/invoke_gemini", h.Invoke)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/invoke", h.Invoke)
		v1.Post("/search", h.Search)
		v1.Get("/models", h.ListProviders)
		v1.Get("/models/openrouter", h.ListOpenRouterModels)

		v1.Route("/research", func(rr chi.Router) {
			rr.Post("/", h.Research)
			rr.Get("/runs/{id}", h.GetResearchRun)
		})
	})

	return r
}
