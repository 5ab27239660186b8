// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package audit writes the security event trail.
//
// Events go to a size-rotated JSON log file separate from the service log.
// Attribute values under credential-bearing keys are redacted before they
// reach the writer, so a mis-placed attr can never leak a password or token.
package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gatehouse/gatehouse/internal/config"
)

// Actions recorded in the trail.
const (
	ActionRegister        = "user_registered"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionResetRequested  = "password_reset_requested"
	ActionResetCompleted  = "password_reset_completed"
	ActionSuspiciousInput = "suspicious_input_rejected"
	ActionPanic           = "handler_panic"
)

// redactedKeys are attribute keys whose values must never be written out.
var redactedKeys = []string{"password", "token", "secret"}

// Logger records audit events as JSON lines.
type Logger struct {
	log    *slog.Logger
	closer io.Closer
}

// New opens the audit trail described by cfg. An empty file name sends
// events to stderr, which keeps tests and local runs file-free.
func New(cfg config.AuditConfig) *Logger {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = lj
		closer = lj
	}
	return NewWithWriter(w, closer)
}

// NewWithWriter builds a Logger over an arbitrary writer. closer may be nil.
func NewWithWriter(w io.Writer, closer io.Closer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: redactAttr,
	})
	return &Logger{log: slog.New(handler), closer: closer}
}

// Record writes one event. Identifying details (user id, client address,
// rejected field names) travel as attrs; the action string is fixed.
func (l *Logger) Record(ctx context.Context, level slog.Level, action string, attrs ...any) {
	args := append([]any{slog.String("action", action)}, attrs...)
	l.log.Log(ctx, level, "audit", args...)
}

// Close flushes the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, k := range redactedKeys {
		if strings.Contains(key, k) {
			a.Value = slog.StringValue("[REDACTED]")
			return a
		}
	}
	return a
}
