// Package http exposes the classifier and forecaster as a JSON API.
package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"previsioni/internal/classifier"
	"previsioni/internal/core"
	"previsioni/internal/forecast"
	"previsioni/internal/log"
	"previsioni/internal/middleware/ratelimit"
	"previsioni/internal/middleware/security"
	"previsioni/internal/middleware/trace"
)

// Classifier predicts categories and grows the labeled corpus.
type Classifier interface {
	Predict(ctx context.Context, description string) (classifier.Prediction, error)
	AddExample(ctx context.Context, description, category string) (core.LabeledExample, int64, error)
}

// Forecaster computes and stores spending forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, ownerID string) (forecast.Result, error)
	Latest(ctx context.Context, ownerID string) (core.ForecastSnapshot, error)
	RequestRefresh(ctx context.Context, ownerID string) (queued bool, err error)
}

// CheckFunc is a readiness probe for one dependency.
type CheckFunc func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Classifier Classifier
	Forecaster Forecaster
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]CheckFunc
	// RequestTimeout bounds every /api request. Zero disables it.
	RequestTimeout time.Duration
	// RateLimit is the number of POST requests allowed per client per minute.
	RateLimit int
	Logger    *log.Logger
}

// Server wraps http.Server with the API routes and middleware.
type Server struct {
	http.Server

	classifier Classifier
	forecaster Forecaster
	checks     map[string]CheckFunc
	timeout    time.Duration
	logger     *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		classifier: opts.Classifier,
		forecaster: opts.Forecaster,
		checks:     opts.Checks,
		timeout:    opts.RequestTimeout,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
		detector:   security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := func(h http.HandlerFunc) http.Handler { return s.withTimeout(h) }
	mux.Handle("POST /api/predict-category", api(s.handlePredict))
	mux.Handle("POST /api/corpus/examples", api(s.handleAddExample))
	mux.Handle("GET /api/forecast", api(s.handleForecast))
	mux.Handle("GET /api/forecast/latest", api(s.handleLatestForecast))
	mux.Handle("POST /api/forecast/refresh", api(s.handleRefreshForecast))

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	}
	isPost := func(r *http.Request) bool { return r.Method == http.MethodPost }

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, isPost, onLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// withTimeout bounds the request context. Handlers map the deadline to 504.
func (s *Server) withTimeout(next http.HandlerFunc) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readyResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
