// Package http serves the ledger as a JSON API routed with chi.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"flatmates/internal/balance"
	"flatmates/internal/cache"
	"flatmates/internal/ledger"
	applog "flatmates/internal/log"
	"flatmates/internal/metrics"
	"flatmates/internal/middleware/ratelimit"
	"flatmates/internal/middleware/security"
	"flatmates/internal/middleware/trace"
)

const (
	defaultMaxBodyBytes  = 1 << 20
	defaultStatsCacheTTL = 5 * time.Minute
	statsCacheSize       = 64
)

// Options wires the server to the ledger and its collaborators. Only Ledger
// is required.
type Options struct {
	Ledger  *ledger.Store
	Metrics *metrics.Metrics
	Logger  *applog.Logger
	// Ready is probed by /readyz, typically the backend ping.
	Ready func(ctx context.Context) error
	// Now is the clock for default report dates.
	Now           func() time.Time
	RateLimit     ratelimit.Config
	MaxBodyBytes  int64
	StatsCacheTTL time.Duration
}

type Server struct {
	http.Server

	ledger       *ledger.Store
	metrics      *metrics.Metrics
	ready        func(ctx context.Context) error
	now          func() time.Time
	maxBodyBytes int64

	limiter  *ratelimit.Limiter
	detector *security.Detector

	statsCache *cache.LRUCache[balance.MonthStats]
	caches     *cache.Manager

	shutdownOnce sync.Once
}

func NewServer(addr string, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.StatsCacheTTL <= 0 {
		opts.StatsCacheTTL = defaultStatsCacheTTL
	}

	s := &Server{
		ledger:       opts.Ledger,
		metrics:      opts.Metrics,
		ready:        opts.Ready,
		now:          opts.Now,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		detector:     security.NewDetector(),
		statsCache:   cache.NewLRUCache[balance.MonthStats](statsCacheSize, opts.StatsCacheTTL),
		caches:       cache.NewManager(),
	}
	s.caches.Register("stats", s.statsCache)
	s.caches.StartCleanup(context.Background(), time.Minute)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.Logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(trace.Middleware(trace.Options{
		ExtractIP: s.detector.ClientIP,
		Route:     routePattern,
		Observe:   s.metrics.ObserveRequest,
	}))
	r.Use(applog.Middleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	limited := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(applog.ComponentMiddleware(applog.ComponentLedger))

		r.Get("/expenses", s.handleListExpenses)
		r.With(limited).Post("/expenses", s.handleCreateExpense)
		r.With(limited).Delete("/expenses", s.handleClearExpenses)
		r.Get("/expenses/{id}", s.handleGetExpense)
		r.With(limited).Patch("/expenses/{id}", s.handleEditExpense)
		r.With(limited).Delete("/expenses/{id}", s.handleDeleteExpense)

		r.Get("/balance", s.handleBalance)
		r.Get("/stats", s.handleStats)

		r.Get("/export", s.handleExportJSON)
		r.Get("/export.csv", s.handleExportCSV)
		r.With(limited).Post("/import", s.handleImport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

// Shutdown stops background work, then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	})
	return err
}
