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
	"sync"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/runtime"
)

// startupGrace is how long Start waits for the listener to fail before
// reporting success.
const startupGrace = 500 * time.Millisecond

// Server runs the HTTP API for a configuration and swaps in a new runtime
// whenever the configuration changes.
type Server struct {
	opts Options

	mu      sync.Mutex
	config  *config.Config
	runtime *runtime.Runtime
	http    *HTTPServer

	cancelHTTP  context.CancelFunc
	cancelWatch context.CancelFunc
	httpErr     chan error

	stopChan   chan struct{}
	reloadChan chan *config.Config
	doneChan   chan struct{}
	stopOnce   sync.Once
	err        error
}

// Options configures a Server.
type Options struct {
	Config *config.Config

	// ConfigLoader is watched for changes when set. Its onChange callback
	// should call Reload.
	ConfigLoader *config.Loader

	RuntimeOptions []runtime.Option
	HTTPOptions    []HTTPServerOption
}

// New creates a server. Nothing is built until Start.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	return &Server{
		opts:       opts,
		config:     opts.Config,
		stopChan:   make(chan struct{}),
		reloadChan: make(chan *config.Config, 1),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start builds the runtime, starts listening and returns once the listener
// is up. The server runs until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	httpCtx, cancel := context.WithCancel(context.Background())
	s.cancelHTTP = cancel
	s.httpErr = make(chan error, 1)
	go func() {
		s.httpErr <- s.http.Start(httpCtx)
	}()

	select {
	case err := <-s.httpErr:
		cancel()
		s.closeRuntime()
		if err == nil {
			err = errors.New("listener exited")
		}
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(startupGrace):
	}

	if s.opts.ConfigLoader != nil {
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		s.cancelWatch = cancelWatch
		go func() {
			if err := s.opts.ConfigLoader.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("Config watch stopped", "error", err)
			}
		}()
	}

	s.logStartup()

	go s.runLifecycle(ctx)

	return nil
}

func (s *Server) initialize(ctx context.Context) error {
	rt, err := runtime.New(ctx, s.config, s.opts.RuntimeOptions...)
	if err != nil {
		return fmt.Errorf("runtime initialization failed: %w", err)
	}

	h, err := NewHTTPServer(rt, s.opts.HTTPOptions...)
	if err != nil {
		_ = rt.Close()
		return err
	}

	s.mu.Lock()
	s.runtime = rt
	s.http = h
	s.mu.Unlock()
	return nil
}

// Reload schedules a switch to cfg. Only the latest pending config is
// applied.
func (s *Server) Reload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for {
		select {
		case s.reloadChan <- cfg:
			return
		default:
			select {
			case <-s.reloadChan:
			default:
			}
		}
	}
}

// Runtime returns the runtime currently served.
func (s *Server) Runtime() *runtime.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtime
}

// Handler returns the HTTP handler, nil before Start.
func (s *Server) Handler() *HTTPServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http
}

// Wait blocks until the server has stopped and returns the error that
// stopped it, if any.
func (s *Server) Wait() error {
	<-s.doneChan
	return s.err
}

// Stop shuts the server down and waits for it, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })

	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) runLifecycle(ctx context.Context) {
	defer close(s.doneChan)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down...")
			s.cleanup(true)
			return

		case <-s.stopChan:
			slog.Info("Stop requested...")
			s.cleanup(true)
			return

		case err := <-s.httpErr:
			if err != nil {
				slog.Error("HTTP server failed", "error", err)
				s.err = err
			}
			s.cleanup(false)
			return

		case cfg := <-s.reloadChan:
			slog.Info("Configuration reload requested...")
			if err := s.apply(ctx, cfg); err != nil {
				slog.Error("Reload failed, keeping previous configuration", "error", err)
				continue
			}
			slog.Info("Server reloaded successfully", "knowledge", s.Runtime().KnowledgeNames())
		}
	}
}

// apply builds a runtime for cfg and swaps it in. The previous runtime is
// closed once the routes point at the new one. Listener settings need a
// restart to take effect.
func (s *Server) apply(ctx context.Context, cfg *config.Config) error {
	rt, err := runtime.New(ctx, cfg, s.opts.RuntimeOptions...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	h := s.http
	s.mu.Unlock()

	if err := h.SetRuntime(rt); err != nil {
		_ = rt.Close()
		return err
	}

	s.mu.Lock()
	old := s.runtime
	prevAddr := s.config.Server.Address()
	s.runtime = rt
	s.config = cfg
	s.mu.Unlock()

	if addr := cfg.Server.Address(); addr != prevAddr {
		slog.Warn("Listen address changed, restart to apply", "current", prevAddr, "configured", addr)
	}

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("Failed to close previous runtime", "error", err)
		}
	}
	return nil
}

func (s *Server) cleanup(waitHTTP bool) {
	var shutdownErrors []error

	if s.cancelWatch != nil {
		s.cancelWatch()
	}
	if s.opts.ConfigLoader != nil {
		if err := s.opts.ConfigLoader.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("config loader: %w", err))
		}
	}

	if s.cancelHTTP != nil {
		s.cancelHTTP()
		if waitHTTP {
			if err := <-s.httpErr; err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("HTTP: %w", err))
			}
		}
	}

	if err := s.closeRuntime(); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("runtime: %w", err))
	}

	for _, err := range shutdownErrors {
		slog.Warn("Shutdown error", "error", err)
	}
}

func (s *Server) closeRuntime() error {
	s.mu.Lock()
	rt := s.runtime
	s.runtime = nil
	s.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close()
}

func (s *Server) logStartup() {
	s.mu.Lock()
	cfg := s.config
	rt := s.runtime
	s.mu.Unlock()

	slog.Info("Server started",
		"address", "http://"+cfg.Server.Address(),
		"knowledge", rt.KnowledgeNames(),
		"tools", rt.ToolNames())
	if cfg.Server.MCP.Enabled {
		slog.Info("MCP endpoint mounted", "path", cfg.Server.MCP.Path)
	}
}
