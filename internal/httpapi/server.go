// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/ratelimit"
)

// Limiters holds the limiter instances applied by the router. The global
// limiter covers every route; the others stack on their own routes.
type Limiters struct {
	Global           *ratelimit.Limiter
	Login            *ratelimit.Limiter
	RetrievePassword *ratelimit.Limiter
}

// NewLimiters builds the standard limiter set.
func NewLimiters() (*Limiters, error) {
	global, err := ratelimit.New(ratelimit.GlobalRules...)
	if err != nil {
		return nil, err
	}
	login, err := ratelimit.New(ratelimit.LoginRule)
	if err != nil {
		return nil, err
	}
	retrieve, err := ratelimit.New(ratelimit.RetrievePasswordRule)
	if err != nil {
		return nil, err
	}
	return &Limiters{Global: global, Login: login, RetrievePassword: retrieve}, nil
}

// Prune drops expired limiter windows. Call periodically.
func (l *Limiters) Prune() {
	l.Global.Prune()
	l.Login.Prune()
	l.RetrievePassword.Prune()
}

// NewRouter assembles the full route tree with its middleware stack.
func NewRouter(h *Handler, authSvc *auth.Service, limiters *Limiters, trail *audit.Logger, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(countRequests(metrics))
	r.Use(recoverer(trail))
	r.Use(rateLimit(limiters.Global, "global", metrics))

	r.Get("/register", h.registerForm)
	r.Post("/register", h.register)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(limiters.Login, "/login", metrics))
		r.Get("/login", h.loginForm)
		r.Post("/login", h.login)
	})

	r.Get("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(authSvc))
		r.Get("/success", h.success)
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(limiters.RetrievePassword, "/retrievePassword", metrics))
		r.Get("/retrievePassword", h.retrievePasswordForm)
		r.Post("/retrievePassword", h.retrievePassword)
	})

	r.Get("/resetPassword/{token}", h.resetPasswordForm)
	r.Post("/resetPassword/{token}", h.resetPassword)

	return r
}

// Server runs the public HTTP listener.
type Server struct {
	addr       string
	handler    http.Handler
	limiters   *Limiters
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
	pruneStop  chan struct{}
}

// NewServer creates the public server. Start opens the listener.
func NewServer(addr string, handler http.Handler, limiters *Limiters) *Server {
	return &Server{
		addr:     addr,
		handler:  handler,
		limiters: limiters,
	}
}

// Start begins serving. It returns an error channel that receives any error
// from the HTTP server after startup; the channel closes on clean shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	if s.limiters != nil {
		s.pruneStop = make(chan struct{})
		go s.pruneLoop(s.pruneStop)
	}

	slog.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.pruneStop != nil {
		close(s.pruneStop)
		s.pruneStop = nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_http_server").Wrap(err)
		}
	}

	slog.Info("http server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) pruneLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.limiters.Prune()
		case <-stop:
			return
		}
	}
}
