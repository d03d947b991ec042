// Package web serves the grid API, the linked-record lookup endpoints and the
// grid mount page.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/visualedit/internal/config"
	"github.com/JonMunkholm/visualedit/internal/dataset"
	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/lookup"
	mw "github.com/JonMunkholm/visualedit/internal/web/middleware"
)

// maxBodySize caps request bodies of the grid API.
const maxBodySize = 1 << 20

// LookupService answers linked-record lookups.
type LookupService interface {
	Search(ctx context.Context, dataset, term string) ([]lookup.Candidate, error)
	Label(ctx context.Context, dataset, key string) (string, error)
}

// EditLogReader reads a grid's recent edits.
type EditLogReader interface {
	EditLog(ctx context.Context, gridID string, limit int) ([]dataset.EditEntry, error)
}

// Server is the HTTP server of the grid backend.
type Server struct {
	cfg     *config.Config
	catalog *grid.Catalog
	lookups LookupService
	edits   EditLogReader

	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a server over the catalog. edits may be nil when no
// edit log is kept.
func NewServer(cfg *config.Config, catalog *grid.Catalog, lookups LookupService, edits EditLogReader) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		lookups: lookups,
		edits:   edits,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

func (s *Server) setupRoutes() {
	auth := mw.APIKeyAuth(&s.cfg.Security)

	// Grid pages and API share the general rate limit.
	s.router.Group(func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
		}

		r.Get("/grid/{gridID}", s.handleGridPage)

		r.Route("/api", func(r chi.Router) {
			r.Use(auth)
			r.Get("/grids", s.handleListGrids)

			r.Route("/grids/{gridID}", func(r chi.Router) {
				r.Use(s.gridCtx)
				r.Get("/", s.handleGetGrid)
				r.Get("/columns", s.handleColumns)
				r.Post("/columns/{field}/toggle", s.handleToggleColumn)
				r.Put("/group-by", s.handleGroupBy)
				r.Get("/rows", s.handleRows)
				r.Post("/reload", s.handleReload)
				r.Post("/messages", s.handleMessage)
				r.Post("/edits", s.handleEdit)
				r.Get("/edit-log", s.handleEditLog)

				r.Route("/editors/{nodeID}", func(r chi.Router) {
					r.Post("/", s.handleOpenEditor)
					r.Put("/", s.handleTypeInEditor)
					r.Get("/", s.handleEditorCandidates)
					r.Delete("/", s.handleCloseEditor)
				})
			})
		})
	})

	// Open editors poll the lookup endpoints, so they get their own budget.
	s.router.Group(func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.newLimiter(s.cfg.Rate.LookupLimit).middleware)
		}
		r.Use(auth)
		r.Get("/lookup/{dataset}", s.handleLookup)
		r.Get("/label/{dataset}", s.handleLabel)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// gridCtx resolves {gridID} to its controller.
func (s *Server) gridCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "gridID")
		c, ok := s.catalog.Get(id)
		if !ok {
			respondError(w, r, errGridNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithController(r.Context(), c)))
	})
}

// securityHeaders adds security headers to all responses. The mount page
// loads the grid widget from the host, so scripts are limited to self.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'self'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter allows rate requests per window for each client address.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup drops visitors idle for two windows.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			msg, status := MapError(errRateLimited)
			writeErrorResponse(w, status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeJSON encodes v as JSON. Encoding errors are logged since the
// headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
