// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/ratelimit"
)

type contextKey string

const userContextKey contextKey = "gatehouse.user"

// userFrom returns the authenticated user stored by requireAuth.
func userFrom(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userContextKey).(*auth.User)
	return u, ok
}

// clientIP extracts the client address set by the RealIP middleware,
// without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// countRequests records one metrics sample per request, labeled by route
// pattern and response status. The pattern is read after routing so all
// reset tokens collapse into one label value.
func countRequests(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if metrics == nil {
				return
			}
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		})
	}
}

// rateLimit rejects requests whose client address exceeded the limiter's
// windows. The 429 body is identical for every limiter scope.
func rateLimit(limiter *ratelimit.Limiter, route string, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				if metrics != nil {
					metrics.RateLimitRejections.WithLabelValues(route).Inc()
				}
				respondMsg(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth verifies the Authorization bearer token and stores the
// authenticated user in the request context.
func requireAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondMsg(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			user, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				respondMsg(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recoverer converts panics into a generic 500 and records them in the audit
// trail. The panic value itself goes only to the operational log.
func recoverer(trail *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}

				slog.Error("handler panic",
					"path", r.URL.Path,
					"method", r.Method,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				if trail != nil {
					trail.Record(r.Context(), slog.LevelError, audit.ActionPanic,
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("client", clientIP(r)),
					)
				}
				respondMsg(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
