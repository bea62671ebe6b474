// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service provides registration, login, and profile operations.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   *TokenService
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, hasher PasswordHasher, tokens *TokenService) (*Service, error) {
	return NewServiceWithLogger(accounts, hasher, tokens, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, tokens *TokenService, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{accounts: accounts, hasher: hasher, tokens: tokens, logger: logger}, nil
}

// dummyPasswordHash is verified against when a username doesn't exist so that
// login response time stays consistent with the real-hash path.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new account and issues its first identity token.
// A taken username or email yields ACCOUNT_CONFLICT. The pre-insert lookups
// give precise conflict messages; the store's uniqueness constraint closes
// the race they leave open, mapping to the same outcome.
func (s *Service) Register(ctx context.Context, candidate Candidate) (*Account, string, error) {
	if err := candidate.Validate(); err != nil {
		return nil, "", err
	}

	if _, err := s.accounts.GetByUsername(ctx, candidate.Username); err == nil {
		return nil, "", oops.Code("ACCOUNT_CONFLICT").
			With("field", "username").
			Wrap(ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "check username").
			Wrap(err)
	}

	if _, err := s.accounts.GetByEmail(ctx, candidate.Email); err == nil {
		return nil, "", oops.Code("ACCOUNT_CONFLICT").
			With("field", "email").
			Wrap(ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "check email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(candidate.Password)
	if err != nil {
		return nil, "", oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(candidate, hash)
	if err != nil {
		return nil, "", err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// Two concurrent registrations can both pass the pre-checks; the
		// store's unique index decides the loser.
		if errors.Is(err, ErrConflict) {
			return nil, "", oops.Code("ACCOUNT_CONFLICT").Wrap(err)
		}
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	s.logger.Info("account registered", "account_id", account.ID.String(), "username", account.Username)
	return account, token, nil
}

// Login authenticates an account by username and password and issues an
// identity token. The outcome for an unknown username and a wrong password
// is identical to avoid identity enumeration, and a dummy hash is verified
// on the unknown-username path to keep timing consistent.
func (s *Service) Login(ctx context.Context, username, password string) (*Account, string, error) {
	account, lookupErr := s.accounts.GetByUsername(ctx, username)

	targetHash := dummyPasswordHash
	accountExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !accountExists {
			return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !accountExists || !valid {
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
	}

	// Transparently rehash legacy (non-argon2id) hashes. Best effort; login
	// succeeds even if the upgrade write fails.
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			if updErr := s.accounts.UpdatePassword(ctx, account.ID, newHash); updErr != nil {
				s.logger.Warn("password hash upgrade failed", "account_id", account.ID.String(), "error", updErr)
			} else {
				account.PasswordHash = newHash
			}
		}
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	return account, token, nil
}

// Profile returns the public profile for an active account by username.
func (s *Service) Profile(ctx context.Context, username string) (Profile, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, oops.Code("ACCOUNT_NOT_FOUND").
				With("username", username).
				Wrap(err)
		}
		return Profile{}, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "get account by username").
			Wrap(err)
	}
	return account.Profile(), nil
}

// Deactivate soft-deletes an account. Outstanding identity tokens remain
// valid until natural expiry; only store lookups are affected.
func (s *Service) Deactivate(ctx context.Context, id ulid.ULID) error {
	if err := s.accounts.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("account_id", id.String()).
				Wrap(err)
		}
		return oops.Code("ACCOUNT_DEACTIVATE_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	s.logger.Info("account deactivated", "account_id", id.String())
	return nil
}
