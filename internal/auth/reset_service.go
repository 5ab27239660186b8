// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// Mailer delivers password reset links. The SMTP implementation lives in
// internal/mail; tests substitute a recorder.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// PasswordResetService handles the two-step reset flow: request a mailed
// link, then consume the link's token to overwrite the password.
type PasswordResetService struct {
	users   UserRepository
	hasher  PasswordHasher
	tokens  *TokenIssuer
	mailer  Mailer
	baseURL string
}

// NewPasswordResetService creates a PasswordResetService. baseURL is the
// externally visible prefix for reset links.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher, tokens *TokenIssuer, mailer Mailer, baseURL string) *PasswordResetService {
	return &PasswordResetService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: baseURL,
	}
}

// RequestReset mints a reset token for the email and mails the link.
// If no account holds the email the call still succeeds, so the response
// never reveals which emails exist. The mail send blocks the calling
// request until the transport returns.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, err := s.tokens.IssueReset(user.Email)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue reset token").
			Wrap(err)
	}

	link := s.baseURL + "/resetPassword/" + token
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		return oops.Code("RESET_MAIL_FAILED").
			With("operation", "send reset mail").
			Wrap(err)
	}

	return nil
}

// CheckToken validates a reset token without consuming it, returning the
// email it was minted for. Expired and malformed tokens fail with distinct
// errors (ErrResetTokenExpired, ErrResetTokenInvalid).
func (s *PasswordResetService) CheckToken(token string) (string, error) {
	return s.tokens.VerifyReset(token)
}

// ResetPassword verifies the token and overwrites the stored hash for the
// embedded email. The token is not invalidated afterwards; it can be
// replayed until its expiry passes.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) (*User, error) {
	if newPassword == "" {
		return nil, ErrEmptyPassword
	}

	email, err := s.tokens.VerifyReset(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// The account disappeared between mint and consume.
		if errors.Is(err, ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	return user, nil
}
