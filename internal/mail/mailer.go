// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package mail delivers account emails over SMTP.
package mail

import (
	"context"
	"fmt"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/gatehouse/gatehouse/internal/config"
)

const resetSubject = "Password reset request"

const resetBodyFormat = `Hello,

A password reset was requested for the account registered to this address.
Follow the link below to choose a new password. The link expires in one hour.

%s

If you did not request this, you can safely ignore this message.
`

// Mailer sends messages through one SMTP endpoint.
type Mailer struct {
	client *gomail.Client
	from   string
}

// New builds a Mailer from SMTP settings. Credentials are optional; when the
// username is empty the mailer connects unauthenticated.
func New(cfg config.SMTPConfig) (*Mailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.StartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CLIENT_FAILED").
			With("host", cfg.Host).
			With("port", cfg.Port).
			Wrap(err)
	}

	return &Mailer{client: client, from: cfg.From}, nil
}

// SendPasswordReset mails a reset link to the given address.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, link string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return oops.Code("MAIL_BAD_SENDER").With("from", m.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("MAIL_BAD_RECIPIENT").Wrap(err)
	}
	msg.Subject(resetSubject)
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(resetBodyFormat, link))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").Wrap(err)
	}
	return nil
}
