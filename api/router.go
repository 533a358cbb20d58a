package api

import (
	"net/http"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/conversation"
	"github.com/Goofygiraffe06/blaze/internal/metrics"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Engine   *conversation.Engine
	Metrics  *metrics.Collectors
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	MaxFrameBytes  int64
	PingInterval   time.Duration
}

// NewRouter mounts /health, /metrics and the conversation socket at /ws.
func NewRouter(d Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
	})

	if d.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
	})

	router.Handle("/ws", NewSocketHandler(d.Engine, d.Metrics, d.AllowedOrigins, d.MaxFrameBytes, d.PingInterval))
	return router
}
