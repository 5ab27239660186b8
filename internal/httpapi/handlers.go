// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi implements the public HTTP surface of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/suspect"
)

const accessTokenCookie = "access_token"

// Handler carries the dependencies shared by all route handlers.
type Handler struct {
	auth    *auth.Service
	resets  *auth.PasswordResetService
	trail   *audit.Logger
	metrics *observability.Metrics
}

// NewHandler wires the route handlers. metrics may be nil in tests.
func NewHandler(authSvc *auth.Service, resets *auth.PasswordResetService, trail *audit.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		auth:    authSvc,
		resets:  resets,
		trail:   trail,
		metrics: metrics,
	}
}

// credentials is the request body shared by the register and login routes.
// Both form encoding and JSON are accepted.
type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return credentials{}, err //nolint:wrapcheck // caller maps to a 400
		}
		return c, nil
	}

	if err := r.ParseForm(); err != nil {
		return credentials{}, err //nolint:wrapcheck // caller maps to a 400
	}
	return credentials{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}, nil
}

func (h *Handler) registerForm(w http.ResponseWriter, _ *http.Request) {
	respondMsg(w, http.StatusOK, "submit username, email and password to register")
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		respondMsg(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if creds.Username == "" || creds.Email == "" || creds.Password == "" {
		respondMsg(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	// The password is checked against the hasher, never against the filter;
	// it is hashed before it touches anything else.
	if field, pattern := suspect.MatchFields([][2]string{
		{"username", creds.Username},
		{"email", creds.Email},
	}); pattern != "" {
		h.trail.Record(r.Context(), slog.LevelWarn, audit.ActionSuspiciousInput,
			slog.String("field", field),
			slog.String("pattern", pattern),
			slog.String("client", clientIP(r)),
		)
		respondMsg(w, http.StatusBadRequest, "input rejected")
		return
	}

	user, err := h.auth.Register(r.Context(), creds.Username, creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			respondMsg(w, http.StatusConflict, "email address already registered")
			return
		}
		slog.Error("registration failed", "error", err)
		respondMsg(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.trail.Record(r.Context(), slog.LevelInfo, audit.ActionRegister,
		slog.String("user_id", user.ID.String()),
		slog.String("client", clientIP(r)),
	)
	respondRedirect(w, "/login", "registration successful")
}

func (h *Handler) loginForm(w http.ResponseWriter, _ *http.Request) {
	respondMsg(w, http.StatusOK, "submit username and password to log in")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		respondMsg(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := h.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginFailuresTotal.Inc()
		}
		h.trail.Record(r.Context(), slog.LevelWarn, audit.ActionLoginFailure,
			slog.String("username", creds.Username),
			slog.String("client", clientIP(r)),
		)
		respondMsg(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	h.trail.Record(r.Context(), slog.LevelInfo, audit.ActionLoginSuccess,
		slog.String("user_id", user.ID.String()),
		slog.String("client", clientIP(r)),
	)

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{
		"msg":          "login successful",
		"access_token": token,
	})
}

// logout clears the session cookie. Tokens already handed out stay valid
// until expiry; the short access TTL bounds the exposure.
func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondRedirect(w, "/login", "logged out")
}

func (h *Handler) success(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		respondMsg(w, http.StatusUnauthorized, "missing or invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"msg":      "logged in as " + user.Username,
		"user_id":  user.ID.String(),
		"username": user.Username,
	})
}

func (h *Handler) retrievePasswordForm(w http.ResponseWriter, _ *http.Request) {
	respondMsg(w, http.StatusOK, "submit your email to receive a reset link")
}

const retrieveAck = "if the address is registered, a reset link has been sent"

func (h *Handler) retrievePassword(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil || creds.Email == "" {
		respondMsg(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.resets.RequestReset(r.Context(), creds.Email); err != nil {
		// Delivery failures are logged but the response stays generic, so
		// the outcome reveals nothing about whether the address exists.
		slog.Error("reset request failed", "error", err)
		respondMsg(w, http.StatusOK, retrieveAck)
		return
	}

	if h.metrics != nil {
		h.metrics.ResetMailsTotal.Inc()
	}
	h.trail.Record(r.Context(), slog.LevelInfo, audit.ActionResetRequested,
		slog.String("client", clientIP(r)),
	)
	respondMsg(w, http.StatusOK, retrieveAck)
}

func (h *Handler) resetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := h.resets.CheckToken(token); err != nil {
		respondResetError(w, err)
		return
	}
	respondMsg(w, http.StatusOK, "token accepted, submit a new password")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	creds, err := decodeCredentials(r)
	if err != nil || creds.Password == "" {
		respondMsg(w, http.StatusBadRequest, "password is required")
		return
	}

	user, err := h.resets.ResetPassword(r.Context(), token, creds.Password)
	if err != nil {
		respondResetError(w, err)
		return
	}

	h.trail.Record(r.Context(), slog.LevelInfo, audit.ActionResetCompleted,
		slog.String("user_id", user.ID.String()),
		slog.String("client", clientIP(r)),
	)
	respondRedirect(w, "/login", "password updated")
}

// respondResetError maps reset-token failures. Expired and invalid tokens
// get distinct messages; anything else is a server fault.
func respondResetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrResetTokenExpired):
		respondMsg(w, http.StatusGone, "reset link has expired")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		respondMsg(w, http.StatusBadRequest, "invalid reset link")
	case errors.Is(err, auth.ErrEmptyPassword):
		respondMsg(w, http.StatusBadRequest, "password is required")
	default:
		slog.Error("password reset failed", "error", err)
		respondMsg(w, http.StatusInternalServerError, "internal server error")
	}
}
