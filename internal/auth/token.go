// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token purposes. Kept as an explicit claim so an access token can never be
// replayed against the reset endpoint or vice versa.
const (
	purposeAccess = "access"
	purposeReset  = "password_reset"
)

// ResetTokenTTL is the validity window for password reset tokens.
const ResetTokenTTL = time.Hour

// Token verification errors.
var (
	ErrAccessTokenInvalid = oops.Code("AUTH_TOKEN_INVALID").Errorf("invalid access token")
	ErrResetTokenInvalid  = oops.Code("RESET_TOKEN_INVALID").Errorf("invalid reset token")
	ErrResetTokenExpired  = oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
)

// tokenClaims carries the registered claims plus the token purpose and, for
// reset tokens, the target email.
type tokenClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
}

// TokenIssuer mints and verifies the service's HS256 JWTs.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret []byte, accessTTL time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_EMPTY_SECRET").Errorf("signing secret cannot be empty")
	}
	if accessTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_TTL").Errorf("access token TTL must be positive")
	}
	return &TokenIssuer{secret: secret, accessTTL: accessTTL}, nil
}

// IssueAccess mints an access token carrying the user id as subject.
func (i *TokenIssuer) IssueAccess(userID ulid.ULID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		Purpose: purposeAccess,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns the user id it names.
func (i *TokenIssuer) VerifyAccess(tokenString string) (ulid.ULID, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return ulid.ULID{}, ErrAccessTokenInvalid
	}
	if claims.Purpose != purposeAccess {
		return ulid.ULID{}, ErrAccessTokenInvalid
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, ErrAccessTokenInvalid
	}
	return userID, nil
}

// IssueReset mints a reset token embedding the target email and the issuance
// time. The token is stateless: it stays valid, and replayable, until the
// embedded expiry passes.
func (i *TokenIssuer) IssueReset(email string) (string, error) {
	if email == "" {
		return "", oops.Code("RESET_EMPTY_EMAIL").Errorf("email cannot be empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ResetTokenTTL)),
		},
		Purpose: purposeReset,
		Email:   email,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("RESET_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// VerifyReset validates a reset token and returns the email it was minted
// for. Expiry and other failures are reported as distinct errors so the
// handler can show a differentiated message.
func (i *TokenIssuer) VerifyReset(tokenString string) (string, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrResetTokenExpired
		}
		return "", ErrResetTokenInvalid
	}
	if claims.Purpose != purposeReset || claims.Email == "" {
		return "", ErrResetTokenInvalid
	}
	return claims.Email, nil
}

// parse verifies the signature and standard claims of a token.
func (i *TokenIssuer) parse(tokenString string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err //nolint:wrapcheck // callers map to domain errors
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}
