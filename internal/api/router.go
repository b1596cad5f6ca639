// Package api serves the vessel telemetry HTTP surface: the device upload
// endpoint, the snapshot and history reads polled by the web client, and
// operational endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saviobatista/vessel-tracker/internal/stats"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// Ingester accepts raw telemetry payloads
type Ingester interface {
	Ingest(ctx context.Context, raw map[string]any) error
}

// Querier reads the vessel snapshot and history
type Querier interface {
	Latest(ctx context.Context) (*types.SnapshotView, error)
	History(ctx context.Context, limit int) (*types.HistoryPage, error)
}

// Recorder keeps a copy of raw upload payloads
type Recorder interface {
	Record(msg *types.TelemetryMessage) error
}

// Options configures the router
type Options struct {
	// CORSAllowedOrigins lists origins allowed to call the API. Empty
	// disables cross-origin access.
	CORSAllowedOrigins []string

	// UploadRateLimit is the per-IP upload limit per minute; 0 disables it.
	UploadRateLimit int

	// StaticDir serves the polling front end when set
	StaticDir string

	Recorder Recorder
	Stats    *stats.Stats
}

// Handler holds the dependencies of the HTTP handlers
type Handler struct {
	ingester Ingester
	querier  Querier
	recorder Recorder
	stats    *stats.Stats
}

// NewHandler creates the HTTP handlers
func NewHandler(ingester Ingester, querier Querier, opts Options) *Handler {
	st := opts.Stats
	if st == nil {
		st = stats.New()
	}
	return &Handler{
		ingester: ingester,
		querier:  querier,
		recorder: opts.Recorder,
		stats:    st,
	}
}

// NewRouter builds the chi router with the full middleware stack
func NewRouter(ingester Ingester, querier Querier, opts Options) http.Handler {
	h := NewHandler(ingester, querier, opts)

	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog())
	r.Use(Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(uploadRateLimit(opts.UploadRateLimit)).Post("/upload-boat-info", h.UploadBoatInfo)
		r.Get("/boat", h.Boat)
		r.Get("/boat/history", h.BoatHistory)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}

func uploadRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, r, http.StatusTooManyRequests, uploadResponse{Success: false, Error: "Too many requests"})
		}),
	)
}
