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

	"github.com/driftline/driftline/internal/feed"
	"github.com/driftline/driftline/pkg/errutil"
)

func testPost() *feed.Post {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &feed.Post{
		ID:        ulid.Make(),
		AuthorID:  ulid.Make(),
		Content:   "hello world",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func expectInsertPost(mock pgxmock.PgxPoolIface, p *feed.Post) *pgxmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO posts`).
		WithArgs(
			p.ID.String(), p.AuthorID.String(), p.Content, p.ImageURL,
			p.LikesCount, p.CommentsCount, p.CreatedAt, p.UpdatedAt,
		)
}

func TestPostRepository_CreatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts post and increments posts_count in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		post := testPost()
		mock.ExpectBegin()
		expectInsertPost(mock, post).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE accounts SET posts_count = posts_count \+ 1`).
			WithArgs(post.AuthorID.String(), post.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		repo := NewPostRepository(mock)
		require.NoError(t, repo.CreatePost(ctx, post))
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("missing author rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		post := testPost()
		mock.ExpectBegin()
		expectInsertPost(mock, post).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE accounts SET posts_count = posts_count \+ 1`).
			WithArgs(post.AuthorID.String(), post.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		repo := NewPostRepository(mock)
		err = repo.CreatePost(ctx, post)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
		assert.ErrorIs(t, err, feed.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign key violation maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		post := testPost()
		mock.ExpectBegin()
		expectInsertPost(mock, post).
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		repo := NewPostRepository(mock)
		err = repo.CreatePost(ctx, post)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
		assert.ErrorIs(t, err, feed.ErrNotFound)
	})

	t.Run("insert failure maps to create failed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		post := testPost()
		mock.ExpectBegin()
		expectInsertPost(mock, post).
			WillReturnError(errors.New("connection refused"))
		mock.ExpectRollback()

		repo := NewPostRepository(mock)
		err = repo.CreatePost(ctx, post)
		errutil.AssertErrorCode(t, err, "POST_CREATE_FAILED")
	})
}

func feedRowColumns(withViewer bool) []string {
	cols := []string{
		"id", "author_id", "content", "image_url",
		"likes_count", "comments_count", "created_at", "updated_at",
		"username", "display_name", "avatar_url",
	}
	if withViewer {
		cols = append(cols, "liked")
	}
	return cols
}

func TestPostRepository_Feed(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("anonymous feed leaves liked unset", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		postID := ulid.Make()
		authorID := ulid.Make()
		rows := pgxmock.NewRows(feedRowColumns(false)).AddRow(
			postID.String(), authorID.String(), "hello", nil,
			3, 0, now, now,
			"ana", nil, nil,
		)
		mock.ExpectQuery(`SELECT (.+) FROM posts p`).
			WithArgs(20, 0).
			WillReturnRows(rows)

		repo := NewPostRepository(mock)
		got, err := repo.Feed(ctx, nil, feed.FeedQuery{Limit: 20})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, postID, got[0].ID)
		assert.Equal(t, "ana", got[0].AuthorUsername)
		assert.Equal(t, 3, got[0].LikesCount)
		assert.Nil(t, got[0].Liked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("viewer feed annotates liked", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		viewer := ulid.Make()
		postID := ulid.Make()
		authorID := ulid.Make()
		rows := pgxmock.NewRows(feedRowColumns(true)).
			AddRow(
				postID.String(), authorID.String(), "liked one", nil,
				1, 0, now, now,
				"ana", nil, nil,
				true,
			).
			AddRow(
				ulid.Make().String(), authorID.String(), "other one", nil,
				0, 0, now.Add(-time.Minute), now.Add(-time.Minute),
				"ana", nil, nil,
				false,
			)
		mock.ExpectQuery(`LEFT JOIN likes l`).
			WithArgs(20, 0, viewer.String()).
			WillReturnRows(rows)

		repo := NewPostRepository(mock)
		got, err := repo.Feed(ctx, &viewer, feed.FeedQuery{Limit: 20})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.NotNil(t, got[0].Liked)
		assert.True(t, *got[0].Liked)
		require.NotNil(t, got[1].Liked)
		assert.False(t, *got[1].Liked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty feed returns empty slice", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM posts p`).
			WithArgs(20, 0).
			WillReturnRows(pgxmock.NewRows(feedRowColumns(false)))

		repo := NewPostRepository(mock)
		got, err := repo.Feed(ctx, nil, feed.FeedQuery{Limit: 20})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
	})

	t.Run("query error maps to feed failed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM posts p`).
			WithArgs(20, 0).
			WillReturnError(errors.New("connection refused"))

		repo := NewPostRepository(mock)
		_, err = repo.Feed(ctx, nil, feed.FeedQuery{Limit: 20})
		errutil.AssertErrorCode(t, err, "FEED_QUERY_FAILED")
	})
}

func expectMembershipCheck(mock pgxmock.PgxPoolIface, accountID, postID ulid.ULID, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(accountID.String(), postID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestPostRepository_ToggleLike(t *testing.T) {
	ctx := context.Background()
	accountID := ulid.Make()
	postID := ulid.Make()

	t.Run("absent like is added", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, false)
		mock.ExpectExec(`INSERT INTO likes`).
			WithArgs(accountID.String(), postID.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE posts SET likes_count = likes_count \+ 1`).
			WithArgs(postID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		repo := NewPostRepository(mock)
		liked, err := repo.ToggleLike(ctx, accountID, postID)
		require.NoError(t, err)
		assert.True(t, liked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("present like is removed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, true)
		mock.ExpectExec(`DELETE FROM likes`).
			WithArgs(accountID.String(), postID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`UPDATE posts SET likes_count = likes_count - 1`).
			WithArgs(postID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		repo := NewPostRepository(mock)
		liked, err := repo.ToggleLike(ctx, accountID, postID)
		require.NoError(t, err)
		assert.False(t, liked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost insert race retries as removal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		// First attempt loses the insert to a concurrent toggle.
		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, false)
		mock.ExpectExec(`INSERT INTO likes`).
			WithArgs(accountID.String(), postID.String(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		// Retry observes the winner's row and removes it.
		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, true)
		mock.ExpectExec(`DELETE FROM likes`).
			WithArgs(accountID.String(), postID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`UPDATE posts SET likes_count = likes_count - 1`).
			WithArgs(postID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		repo := NewPostRepository(mock)
		liked, err := repo.ToggleLike(ctx, accountID, postID)
		require.NoError(t, err)
		assert.False(t, liked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost delete race retries as addition", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, true)
		mock.ExpectExec(`DELETE FROM likes`).
			WithArgs(accountID.String(), postID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectRollback()

		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, false)
		mock.ExpectExec(`INSERT INTO likes`).
			WithArgs(accountID.String(), postID.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE posts SET likes_count = likes_count \+ 1`).
			WithArgs(postID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		repo := NewPostRepository(mock)
		liked, err := repo.ToggleLike(ctx, accountID, postID)
		require.NoError(t, err)
		assert.True(t, liked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing post maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectMembershipCheck(mock, accountID, postID, false)
		mock.ExpectExec(`INSERT INTO likes`).
			WithArgs(accountID.String(), postID.String(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		repo := NewPostRepository(mock)
		_, err = repo.ToggleLike(ctx, accountID, postID)
		errutil.AssertErrorCode(t, err, "POST_NOT_FOUND")
		assert.ErrorIs(t, err, feed.ErrNotFound)
	})
}

func TestPostRepository_GetPost(t *testing.T) {
	ctx := context.Background()

	t.Run("returns post", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		post := testPost()
		rows := pgxmock.NewRows([]string{
			"id", "author_id", "content", "image_url",
			"likes_count", "comments_count", "created_at", "updated_at",
		}).AddRow(
			post.ID.String(), post.AuthorID.String(), post.Content, post.ImageURL,
			post.LikesCount, post.CommentsCount, post.CreatedAt, post.UpdatedAt,
		)
		mock.ExpectQuery(`SELECT (.+) FROM posts`).
			WithArgs(post.ID.String()).
			WillReturnRows(rows)

		repo := NewPostRepository(mock)
		got, err := repo.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, post.ID, got.ID)
		assert.Equal(t, post.Content, got.Content)
	})

	t.Run("missing post wraps not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`SELECT (.+) FROM posts`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		repo := NewPostRepository(mock)
		_, err = repo.GetPost(ctx, id)
		errutil.AssertErrorCode(t, err, "POST_NOT_FOUND")
		assert.ErrorIs(t, err, feed.ErrNotFound)
	})
}
