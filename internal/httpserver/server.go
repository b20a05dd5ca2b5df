package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/config"
	"github.com/radiusdt/inapp-report/internal/database"
	"github.com/radiusdt/inapp-report/internal/funnel"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/radiusdt/inapp-report/internal/reporting"
	"github.com/radiusdt/inapp-report/internal/source"
	"github.com/radiusdt/inapp-report/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Reports is built from the fields above when nil.
	Reports *reporting.Service
}

// Server wraps HTTP handlers and the report service.
type Server struct {
	reports *reporting.Service
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics
}

// NewReportService wires the data source, cache, record store and
// preference backend selected by the configuration.
func NewReportService(ctx context.Context, deps *Dependencies) (*reporting.Service, error) {
	cfg := deps.Config
	logger := deps.Logger

	var cache source.Cache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis cache configured without a redis connection")
		}
		cache = source.NewRedisCache(deps.Redis.Client, cfg.Cache.Key, cfg.Cache.TTL)
	case config.CacheMemory:
		cache = source.NewMemoryCache()
	}

	var prefs storage.PreferenceStore
	switch cfg.Preferences.Backend {
	case config.PrefsRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis preferences configured without a redis connection")
		}
		prefs = storage.NewRedisPreferenceStore(deps.Redis.Client, cfg.Redis.Prefix)
	case config.PrefsPostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres preferences configured without a database")
		}
		pg := storage.NewPostgresPreferenceStore(deps.DB.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		prefs = pg
	default:
		prefs = storage.NewInMemoryPreferenceStore()
	}

	client := source.NewClient(cfg.Source.URL, cfg.Source.Timeout, logger, source.WithMetrics(deps.Metrics))
	loader := source.NewLoader(client, cache, cfg.Cache.TTL, logger, deps.Metrics)

	return reporting.NewService(
		loader,
		storage.NewRecordStore(logger),
		prefs,
		reporting.Options{
			DayOffsetDays:     cfg.Filter.DayOffsetDays,
			RejectFutureDates: cfg.Filter.RejectFutureDates,
		},
		logger,
		deps.Metrics,
	), nil
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) (http.Handler, error) {
	reports := deps.Reports
	if reports == nil {
		var err error
		reports, err = NewReportService(context.Background(), deps)
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		reports: reports,
		logger:  deps.Logger,
		config:  deps.Config,
		metrics: deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		if deps.Metrics != nil {
			mux.Handle(deps.Config.Metrics.Path, deps.Metrics.Handler())
		} else {
			mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
		}
	}

	// Reports
	s.route(mux, "/reports/refresh", s.handleRefresh)
	s.route(mux, "/reports/hourly", s.handleHourly)
	s.route(mux, "/reports/options", s.handleOptions)
	s.route(mux, "/reports/series", s.handleSeries)
	s.route(mux, "/reports/daily-cr", s.handleDailyCR)
	s.route(mux, "/reports/export", s.handleExport)

	// Saved filters
	s.route(mux, "/preferences/filter", s.handlePreferences)

	return mux, nil
}

// route registers h and counts its responses by status code.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(pattern, sw.status)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wrote {
		sw.status = code
		sw.wrote = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wrote = true
	return sw.ResponseWriter.Write(b)
}

// ---- Health ----

type healthResponse struct {
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	Generation uint64     `json:"generation,omitempty"`
	LoadedAt   *time.Time `json:"loadedAt,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.reports.Snapshot()
	if snap == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "loading"})
		return
	}
	loadedAt := snap.LoadedAt
	s.jsonResponse(w, healthResponse{
		Status:     "ok",
		Records:    snap.Len(),
		Generation: snap.Generation,
		LoadedAt:   &loadedAt,
	})
}

// ---- Errors ----

// handleError maps service errors onto status codes.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		s.errorResponse(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, funnel.ErrUnknownField):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, reporting.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, source.ErrFetch):
		s.logger.Error("report data unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, "failed to fetch report data", http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
