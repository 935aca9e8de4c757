// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/hectorkb/pkg/auth"
	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/mcpserver"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/ratelimit"
	"github.com/kadirpekel/hectorkb/pkg/runtime"
)

// HTTPServer serves the knowledge API of a runtime.
type HTTPServer struct {
	version   string
	validator auth.TokenValidator
	usage     ratelimit.Store

	mu      sync.RWMutex
	rt      *runtime.Runtime
	handler http.Handler
	cfg     config.ServerConfig

	server *http.Server
}

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithAuthValidator validates bearer tokens with v instead of the
// runtime's JWT validator.
func WithAuthValidator(v auth.TokenValidator) HTTPServerOption {
	return func(s *HTTPServer) {
		s.validator = v
	}
}

// WithVersion sets the version reported by /health and to MCP clients.
func WithVersion(version string) HTTPServerOption {
	return func(s *HTTPServer) {
		s.version = version
	}
}

// NewHTTPServer creates a server for rt.
func NewHTTPServer(rt *runtime.Runtime, opts ...HTTPServerOption) (*HTTPServer, error) {
	s := &HTTPServer{version: "dev", usage: ratelimit.NewMemoryStore()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.SetRuntime(rt); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRuntime rebuilds the routes for rt. Requests in flight finish on the
// previous runtime.
func (s *HTTPServer) SetRuntime(rt *runtime.Runtime) error {
	if rt == nil {
		return errors.New("runtime is required")
	}
	h, err := s.routes(rt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rt = rt
	s.handler = h
	s.cfg = rt.Config().Server
	s.mu.Unlock()
	return nil
}

// Runtime returns the runtime currently served.
func (s *HTTPServer) Runtime() *runtime.Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

// ServeHTTP dispatches to the routes of the current runtime.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	h.ServeHTTP(w, r)
}

// Address returns the listen address.
func (s *HTTPServer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Address()
}

// Start listens until ctx is done or the listener fails.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	slog.Info("HTTP server starting", "address", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the listener.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	slog.Info("HTTP server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// routes builds the router. Middleware order: observability, logging,
// cors, auth, rate limits, routes. Usage counters outlive reloads.
func (s *HTTPServer) routes(rt *runtime.Runtime) (http.Handler, error) {
	cfg := rt.Config()
	obs := rt.Observability()
	metricsPath := cfg.Observability.Metrics.Endpoint

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(observability.HTTPMiddleware(obs.Tracer(), obs.Metrics()))
	r.Use(loggingMiddleware)
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	}

	validator := s.validator
	if validator == nil && rt.Validator() != nil {
		validator = rt.Validator()
	}
	writeGuard := func(next http.Handler) http.Handler { return next }
	if validator != nil {
		ac := cfg.Server.Auth
		r.Use(auth.MiddlewareFromConfig(ac, validator, "/health", metricsPath))
		if ac != nil && len(ac.WriteRoles) > 0 {
			writeGuard = auth.RequireRole(ac.WriteRoles...)
			slog.Info("Authentication enabled", "write_roles", ac.WriteRoles)
		} else {
			slog.Info("Authentication enabled")
		}
	}

	limiter, err := ratelimit.New(cfg.Server.RateLimit, s.usage)
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		slog.Info("Rate limiting enabled", "rules", len(cfg.Server.RateLimit.Limits))
	}

	uf := cfg.Server.URLFetch
	h := &handlers{rt: rt, version: s.version, urls: &knowledge.URLPolicy{
		AllowedHosts: uf.AllowedHosts,
		DeniedHosts:  uf.DeniedHosts,
		AllowPrivate: uf.AllowPrivate,
	}}

	r.Get("/health", h.health)
	r.Get("/schema", h.schema)
	if m := obs.Metrics(); m != nil {
		r.Handle(metricsPath, m.Handler())
	}

	r.Get("/knowledge", h.listKnowledge)
	r.Route("/knowledge/{kb}", func(r chi.Router) {
		r.Use(h.knowledgeCtx)

		r.Get("/", h.getKnowledge)
		r.Get("/sources", h.listSources)
		r.Get("/filters", h.listFilters)
		r.With(ratelimit.Middleware(limiter, ratelimit.ScopeSearch)).Post("/search", h.search)
		r.Get("/content", h.listContent)
		r.Get("/content/{id}", h.getContent)

		r.Group(func(r chi.Router) {
			r.Use(writeGuard)
			r.Use(ratelimit.Middleware(limiter, ratelimit.ScopeWrite))
			r.Post("/content", h.insertContent)
			r.Delete("/content", h.removeAllContent)
			r.Delete("/content/{id}", h.removeContent)
		})
	})

	if cfg.Server.MCP.Enabled {
		srv, err := mcpserver.New(mcpserver.Config{
			Name:      cfg.Name,
			Version:   s.version,
			Transport: mcpserver.TransportHTTP,
			Path:      cfg.Server.MCP.Path,
		}, rt.Logger(), rt.Tools()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP server: %w", err)
		}
		r.Handle(cfg.Server.MCP.Path, srv.Handler())
	}

	return r, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || slices.Contains(origins, origin)) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
