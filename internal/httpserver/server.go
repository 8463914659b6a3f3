package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/slotwatch/internal/config"
	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/pkg/bucket"
	"github.com/wisbric/slotwatch/pkg/feed"
)

// Server holds the HTTP server dependencies. It serves ops endpoints and the
// read-only Feed Reader; it never accepts writes.
type Server struct {
	Router       *chi.Mux
	Logger       *slog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Metrics      *prometheus.Registry
	feed         *feed.Reader
	buckets      *bucket.Registry
	queries      *db.Queries
	staleHorizon time.Duration
	defaultLimit int
	startedAt    time.Time
}

// NewServer creates the ops + Feed Reader HTTP server.
func NewServer(cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:       chi.NewRouter(),
		Logger:       logger,
		DB:           pool,
		Redis:        rdb,
		Metrics:      metricsReg,
		feed:         feed.NewReader(pool, cfg.FeedMaxLimit, cfg.FeedDefaultLimit),
		buckets:      bucket.NewRegistry(pool),
		queries:      db.New(pool),
		staleHorizon: cfg.StaleBucketThreshold(),
		defaultLimit: cfg.FeedDefaultLimit,
		startedAt:    time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/v1", func(r chi.Router) {
		r.Get("/feed/just-opened", s.handleJustOpened)
		r.Get("/feed/still-open", s.handleStillOpen)
		r.Get("/health/buckets", s.handleBucketHealth)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleJustOpened serves GET /v1/feed/just-opened?since=<RFC3339>&limit=<n>.
// since defaults to one hour ago when omitted.
func (s *Server) handleJustOpened(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "invalid_argument", "since must be RFC3339")
			return
		}
		since = parsed
	}

	limit := parseLimit(r, s.defaultLimit)

	events, err := s.feed.JustOpened(r.Context(), since, limit)
	if err != nil {
		s.Logger.Error("just-opened feed query failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "feed query failed")
		return
	}
	Respond(w, http.StatusOK, map[string]any{"events": events})
}

// handleStillOpen serves GET /v1/feed/still-open?limit=<n>.
func (s *Server) handleStillOpen(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.defaultLimit)

	rows, err := s.feed.StillOpen(r.Context(), s.staleHorizon, limit)
	if err != nil {
		s.Logger.Error("still-open feed query failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "feed query failed")
		return
	}
	Respond(w, http.StatusOK, map[string]any{"slots": rows})
}

// handleBucketHealth serves GET /v1/health/buckets: a scan-recency summary
// used by operators to spot stuck or stale buckets, plus the scheduler's
// own job heartbeat (last/next tick, last error, echo totals).
func (s *Server) handleBucketHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.buckets.GetHealth(r.Context(), s.staleHorizon)
	if err != nil {
		s.Logger.Error("bucket health query failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "bucket health query failed")
		return
	}

	hb, err := s.queries.GetHeartbeat(r.Context())
	if err != nil {
		s.Logger.Error("job heartbeat query failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "job heartbeat query failed")
		return
	}

	Respond(w, http.StatusOK, map[string]any{"buckets": health, "heartbeat": hb})
}

func parseLimit(r *http.Request, fallback int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
