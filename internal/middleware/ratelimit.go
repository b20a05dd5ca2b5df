package middleware

import (
	"net/http"
	"strings"

	"github.com/radiusdt/inapp-report/internal/config"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter classes.
const (
	ClassLight = "light"
	ClassHeavy = "heavy"
)

// heavyPaths rebuild or refetch the whole report.
var heavyPaths = []string{"/reports/export", "/reports/refresh"}

// RateLimitMiddleware implements token bucket rate limiting with one
// bucket for heavy endpoints and one for everything else.
type RateLimitMiddleware struct {
	cfg          config.RateLimitConfig
	logger       *zap.Logger
	metrics      *metrics.Metrics
	lightLimiter *rate.Limiter
	heavyLimiter *rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:          cfg,
		logger:       logger,
		lightLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		heavyLimiter: rate.NewLimiter(rate.Limit(cfg.HeavyRPS), cfg.HeavyBurst),
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		class := ClassOf(r.URL.Path)
		limiter := rl.lightLimiter
		if class == ClassHeavy {
			limiter = rl.heavyLimiter
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.String("class", class),
				zap.String("client_ip", clientIP(r)),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(r.URL.Path, class)
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClassOf returns the limiter class of path.
func ClassOf(path string) string {
	for _, p := range heavyPaths {
		if strings.HasPrefix(path, p) {
			return ClassHeavy
		}
	}
	return ClassLight
}

// clientIP extracts the client IP from the request.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// tooManyRequests sends a 429 response.
func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
