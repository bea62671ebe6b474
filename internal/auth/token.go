// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenExpiry is the lifetime of an issued identity token. Tokens are
// stateless; once issued they remain valid for the full lifetime regardless
// of subsequent account changes.
const TokenExpiry = 24 * time.Hour

// IdentityClaims is the claim set carried inside an identity token.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenService issues and verifies signed, time-bounded identity tokens.
// The signing secret is injected once at construction; rotating it
// invalidates every previously issued token with no grace window.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string) (*TokenService, error) {
	return NewTokenServiceWithClock(secret, time.Now)
}

// NewTokenServiceWithClock creates a TokenService with an injectable clock
// for deterministic expiry tests.
func NewTokenServiceWithClock(secret string, now func() time.Time) (*TokenService, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_SECRET_EMPTY").Errorf("signing secret cannot be empty")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), now: now}, nil
}

// Issue signs a claim set binding the account ID and username, valid from
// now until now plus TokenExpiry.
func (s *TokenService) Issue(accountID ulid.ULID, username string) (string, error) {
	issued := s.now()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(TokenExpiry)),
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").
			With("subject", accountID.String()).
			Wrap(err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// It does not check that the subject account still exists or is active.
func (s *TokenService) Verify(token string) (*IdentityClaims, error) {
	var claims IdentityClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(err)
	}
	return &claims, nil
}
