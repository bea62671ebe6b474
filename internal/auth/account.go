// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Candidate field constraints.
const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MinPasswordLength    = 8
	MaxDisplayNameLength = 100
	MaxBioLength         = 500
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, numbers, and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Account represents a registered identity capable of authenticating and
// owning content. The password hash never leaves this package; outward
// responses use the Profile projection.
type Account struct {
	ID             ulid.ULID
	Username       string
	Email          string
	PasswordHash   string
	DisplayName    *string
	Bio            *string
	AvatarURL      *string
	FollowersCount int
	FollowingCount int
	PostsCount     int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the public projection of an Account. It deliberately has no
// password hash or email field.
type Profile struct {
	ID             ulid.ULID `json:"id"`
	Username       string    `json:"username"`
	DisplayName    *string   `json:"display_name"`
	Bio            *string   `json:"bio"`
	AvatarURL      *string   `json:"avatar_url"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	PostsCount     int       `json:"posts_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Profile returns the public projection of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:             a.ID,
		Username:       a.Username,
		DisplayName:    a.DisplayName,
		Bio:            a.Bio,
		AvatarURL:      a.AvatarURL,
		FollowersCount: a.FollowersCount,
		FollowingCount: a.FollowingCount,
		PostsCount:     a.PostsCount,
		CreatedAt:      a.CreatedAt,
	}
}

// Candidate carries the fields of a registration request before hashing.
type Candidate struct {
	Username    string
	Email       string
	Password    string
	DisplayName *string
}

// Validate checks the candidate fields against registration rules.
func (c Candidate) Validate() error {
	if err := ValidateUsername(c.Username); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return oops.Code("ACCOUNT_INVALID_EMAIL").
			With("email", c.Email).
			Errorf("email address is not valid")
	}
	if len(c.Password) < MinPasswordLength {
		return oops.Code("ACCOUNT_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if c.DisplayName != nil && len(*c.DisplayName) > MaxDisplayNameLength {
		return oops.Code("ACCOUNT_INVALID_DISPLAY_NAME").
			With("max", MaxDisplayNameLength).
			Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	}
	return nil
}

// ValidateUsername validates a username against registration rules:
// MinUsernameLength to MaxUsernameLength characters, starting with a letter,
// containing only letters, numbers, and underscores.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// NewAccount creates a validated Account from a candidate and its password
// hash. The caller hashes the password; this constructor never sees it.
func NewAccount(c Candidate, passwordHash string) (*Account, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           ulid.Make(),
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: passwordHash,
		DisplayName:  c.DisplayName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountRepository manages account persistence. Lookups restrict to active
// accounts; username and email matching is case-insensitive (the store
// enforces uniqueness on the lowercased value).
type AccountRepository interface {
	// Create stores a new account. Returns ErrConflict (wrapped) when the
	// username or email is already taken by an active account.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an active account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an active account by username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail retrieves an active account by email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePassword updates only the password hash for an account.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Deactivate soft-deletes an account by clearing its active flag.
	// Subsequent lookups will not return it.
	Deactivate(ctx context.Context, id ulid.ULID) error
}
