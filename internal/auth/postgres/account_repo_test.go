// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/pkg/errutil"
)

func testAccount() *auth.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.Account{
		ID:           ulid.Make(),
		Username:     "ana",
		Email:        "ana@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func accountRows(a *auth.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash",
		"display_name", "bio", "avatar_url",
		"followers_count", "following_count", "posts_count",
		"active", "created_at", "updated_at",
	}).AddRow(
		a.ID.String(), a.Username, a.Email, a.PasswordHash,
		a.DisplayName, a.Bio, a.AvatarURL,
		a.FollowersCount, a.FollowingCount, a.PostsCount,
		a.Active, a.CreatedAt, a.UpdatedAt,
	)
}

func TestAccountRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, a *auth.Account)
		wantCode  string
		wantIs    error
	}{
		{
			name: "inserts account",
			setupMock: func(mock pgxmock.PgxPoolIface, a *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(
						a.ID.String(), a.Username, a.Email, a.PasswordHash,
						a.DisplayName, a.Bio, a.AvatarURL,
						a.FollowersCount, a.FollowingCount, a.PostsCount,
						a.Active, a.CreatedAt, a.UpdatedAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to conflict",
			setupMock: func(mock pgxmock.PgxPoolIface, a *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(
						a.ID.String(), a.Username, a.Email, a.PasswordHash,
						a.DisplayName, a.Bio, a.AvatarURL,
						a.FollowersCount, a.FollowingCount, a.PostsCount,
						a.Active, a.CreatedAt, a.UpdatedAt,
					).
					WillReturnError(&pgconn.PgError{
						Code:           "23505",
						ConstraintName: "accounts_username_active_idx",
					})
			},
			wantCode: "ACCOUNT_CONFLICT",
			wantIs:   auth.ErrConflict,
		},
		{
			name: "database error maps to create failed",
			setupMock: func(mock pgxmock.PgxPoolIface, a *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(
						a.ID.String(), a.Username, a.Email, a.PasswordHash,
						a.DisplayName, a.Bio, a.AvatarURL,
						a.FollowersCount, a.FollowingCount, a.PostsCount,
						a.Active, a.CreatedAt, a.UpdatedAt,
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			account := testAccount()
			tt.setupMock(mock, account)

			repo := NewAccountRepository(mock)
			err = repo.Create(context.Background(), account)

			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantIs != nil {
					assert.ErrorIs(t, err, tt.wantIs)
				}
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccountRepository_GetByID(t *testing.T) {
	t.Run("returns active account", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectQuery(`SELECT (.+) FROM accounts`).
			WithArgs(account.ID.String()).
			WillReturnRows(accountRows(account))

		repo := NewAccountRepository(mock)
		got, err := repo.GetByID(context.Background(), account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.Equal(t, account.Username, got.Username)
		assert.Equal(t, account.Email, got.Email)
		assert.True(t, got.Active)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account wraps not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`SELECT (.+) FROM accounts`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		repo := NewAccountRepository(mock)
		_, err = repo.GetByID(context.Background(), id)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_GetByUsername(t *testing.T) {
	t.Run("lookup is case-insensitive", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectQuery(`LOWER\(username\) = LOWER\(\$1\)`).
			WithArgs("ANA").
			WillReturnRows(accountRows(account))

		repo := NewAccountRepository(mock)
		got, err := repo.GetByUsername(context.Background(), "ANA")
		require.NoError(t, err)
		assert.Equal(t, "ana", got.Username)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid stored id fails scan", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		rows := pgxmock.NewRows([]string{
			"id", "username", "email", "password_hash",
			"display_name", "bio", "avatar_url",
			"followers_count", "following_count", "posts_count",
			"active", "created_at", "updated_at",
		}).AddRow(
			"not-a-ulid", account.Username, account.Email, account.PasswordHash,
			account.DisplayName, account.Bio, account.AvatarURL,
			0, 0, 0,
			true, account.CreatedAt, account.UpdatedAt,
		)
		mock.ExpectQuery(`LOWER\(username\) = LOWER\(\$1\)`).
			WithArgs("ana").
			WillReturnRows(rows)

		repo := NewAccountRepository(mock)
		_, err = repo.GetByUsername(context.Background(), "ana")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not-a-ulid")
	})
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	account := testAccount()
	mock.ExpectQuery(`LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("Ana@Example.com").
		WillReturnRows(accountRows(account))

	repo := NewAccountRepository(mock)
	got, err := repo.GetByEmail(context.Background(), "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, account.Email, got.Email)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_UpdatePassword(t *testing.T) {
	t.Run("updates hash", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.UpdatePassword(context.Background(), id, "newhash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows means not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewAccountRepository(mock)
		err = repo.UpdatePassword(context.Background(), id, "newhash")
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_Deactivate(t *testing.T) {
	t.Run("marks account inactive", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE accounts SET active = FALSE`).
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.Deactivate(context.Background(), id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already inactive means not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE accounts SET active = FALSE`).
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewAccountRepository(mock)
		err = repo.Deactivate(context.Background(), id)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})
}
