// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/auth"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	ID       ulid.ULID
	Username string
}

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// extractBearer returns the token from an Authorization header. The Bearer
// prefix is case-sensitive; anything else counts as no credential.
func extractBearer(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// Auth failure reasons recorded in metrics.
const (
	reasonMissingCredential = "missing_credential"
	reasonInvalidToken      = "invalid_token"
	reasonMalformedSubject  = "malformed_subject"
)

// resolveIdentity verifies the bearer token and returns the caller identity.
// The failure reason distinguishes a missing credential from a rejected one.
func (s *Server) resolveIdentity(r *http.Request) (Identity, string, error) {
	token, found := extractBearer(r.Header.Get("Authorization"))
	if !found {
		return Identity{}, reasonMissingCredential, nil
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, reasonInvalidToken, err
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, reasonMalformedSubject, err
	}

	return Identity{ID: id, Username: claims.Username}, "", nil
}

func (s *Server) recordAuthFailure(reason string) {
	if s.metrics != nil {
		s.metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// RequireIdentity rejects requests without a valid bearer token.
func (s *Server) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, reason, err := s.resolveIdentity(r)
		if reason != "" {
			s.recordAuthFailure(reason)
			if err != nil {
				s.logger.Debug("rejected credential", "reason", reason, "error", err)
			}
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), identityKey, identity)))
	})
}

// OptionalIdentity resolves a bearer token when one is supplied. A missing
// credential proceeds anonymously; a supplied but invalid one is still
// rejected rather than silently downgraded.
func (s *Server) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, reason, err := s.resolveIdentity(r)
		switch reason {
		case "":
			r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
		case reasonMissingCredential:
			// anonymous
		default:
			s.recordAuthFailure(reason)
			if err != nil {
				s.logger.Debug("rejected credential", "reason", reason, "error", err)
			}
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
