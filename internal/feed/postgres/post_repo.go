// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package postgres provides the PostgreSQL-backed post repository. Counter
// columns and their backing rows move inside a single transaction.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/driftline/driftline/internal/feed"
)

// Like toggles retry briefly when two requests race over the same
// (account, post) pair and one loses the insert or delete.
const (
	toggleRetryAttempts = 3
	toggleRetryBackoff  = 5 * time.Millisecond
)

// poolIface is the subset of pgxpool.Pool used by this repository.
// pgxmock.PgxPoolIface satisfies it for unit tests.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostRepository implements feed.PostRepository using PostgreSQL.
type PostRepository struct {
	pool poolIface
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(pool poolIface) *PostRepository {
	return &PostRepository{pool: pool}
}

// CreatePost inserts the post and increments the author's posts_count in the
// same transaction. A missing or inactive author rolls the whole thing back.
func (r *PostRepository) CreatePost(ctx context.Context, post *feed.Post) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("POST_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO posts (
			id, author_id, content, image_url,
			likes_count, comments_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		post.ID.String(),
		post.AuthorID.String(),
		post.Content,
		post.ImageURL,
		post.LikesCount,
		post.CommentsCount,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("author_id", post.AuthorID.String()).
				Wrap(feed.ErrNotFound)
		}
		return oops.Code("POST_CREATE_FAILED").
			With("operation", "insert post").
			With("post_id", post.ID.String()).
			Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE accounts SET posts_count = posts_count + 1, updated_at = $2
		WHERE id = $1 AND active
	`, post.AuthorID.String(), post.UpdatedAt)
	if err != nil {
		return oops.Code("POST_CREATE_FAILED").
			With("operation", "increment posts_count").
			With("author_id", post.AuthorID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("author_id", post.AuthorID.String()).
			Wrap(feed.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("POST_CREATE_FAILED").
			With("operation", "commit").
			With("post_id", post.ID.String()).
			Wrap(err)
	}
	return nil
}

const feedColumns = `p.id, p.author_id, p.content, p.image_url,
	       p.likes_count, p.comments_count, p.created_at, p.updated_at,
	       a.username, a.display_name, a.avatar_url`

// Feed returns posts newest first with author fields. When viewerID is set,
// each row carries whether that viewer has liked the post; otherwise Liked
// stays nil.
func (r *PostRepository) Feed(ctx context.Context, viewerID *ulid.ULID, query feed.FeedQuery) ([]feed.PostWithAuthor, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if viewerID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+feedColumns+`,
			       l.account_id IS NOT NULL AS liked
			FROM posts p
			JOIN accounts a ON a.id = p.author_id
			LEFT JOIN likes l ON l.post_id = p.id AND l.account_id = $3
			ORDER BY p.created_at DESC, p.id DESC
			LIMIT $1 OFFSET $2
		`, query.Limit, query.Offset, viewerID.String())
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+feedColumns+`
			FROM posts p
			JOIN accounts a ON a.id = p.author_id
			ORDER BY p.created_at DESC, p.id DESC
			LIMIT $1 OFFSET $2
		`, query.Limit, query.Offset)
	}
	if err != nil {
		return nil, oops.Code("FEED_QUERY_FAILED").
			With("operation", "query feed").
			Wrap(err)
	}
	defer rows.Close()

	posts := make([]feed.PostWithAuthor, 0, query.Limit)
	for rows.Next() {
		row, err := scanFeedRow(rows, viewerID != nil)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("FEED_QUERY_FAILED").
			With("operation", "iterate feed rows").
			Wrap(err)
	}
	return posts, nil
}

// ToggleLike flips like membership for (accountID, postID) and moves
// likes_count in the same transaction. A toggle that loses a concurrent race
// over the same pair retries as its mirror operation.
func (r *PostRepository) ToggleLike(ctx context.Context, accountID, postID ulid.ULID) (bool, error) {
	var liked bool
	backoff := retry.WithMaxRetries(toggleRetryAttempts, retry.NewConstant(toggleRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		liked, err = r.toggleLikeOnce(ctx, accountID, postID)
		return err
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}

func (r *PostRepository) toggleLikeOnce(ctx context.Context, accountID, postID ulid.ULID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM likes WHERE account_id = $1 AND post_id = $2
		)
	`, accountID.String(), postID.String()).Scan(&exists)
	if err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "check like membership").
			With("post_id", postID.String()).
			Wrap(err)
	}

	var liked bool
	if exists {
		liked, err = r.removeLike(ctx, tx, accountID, postID)
	} else {
		liked, err = r.addLike(ctx, tx, accountID, postID)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "commit").
			With("post_id", postID.String()).
			Wrap(err)
	}
	return liked, nil
}

// addLike inserts the like row and increments likes_count. A unique
// violation means a concurrent toggle won the insert; the caller retries
// and observes the row, turning this attempt into a remove.
func (r *PostRepository) addLike(ctx context.Context, tx pgx.Tx, accountID, postID ulid.ULID) (bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO likes (account_id, post_id, created_at)
		VALUES ($1, $2, $3)
	`, accountID.String(), postID.String(), time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return false, retry.RetryableError(oops.Code("LIKE_TOGGLE_FAILED").
					With("operation", "insert like").
					With("post_id", postID.String()).
					Wrap(err))
			case pgerrcode.ForeignKeyViolation:
				return false, oops.Code("POST_NOT_FOUND").
					With("post_id", postID.String()).
					Wrap(feed.ErrNotFound)
			}
		}
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "insert like").
			With("post_id", postID.String()).
			Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE posts SET likes_count = likes_count + 1 WHERE id = $1
	`, postID.String())
	if err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "increment likes_count").
			With("post_id", postID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return false, oops.Code("POST_NOT_FOUND").
			With("post_id", postID.String()).
			Wrap(feed.ErrNotFound)
	}
	return true, nil
}

// removeLike deletes the like row and decrements likes_count. A zero-row
// delete means a concurrent toggle already removed it; the caller retries
// and observes the absence, turning this attempt into an add.
func (r *PostRepository) removeLike(ctx context.Context, tx pgx.Tx, accountID, postID ulid.ULID) (bool, error) {
	result, err := tx.Exec(ctx, `
		DELETE FROM likes WHERE account_id = $1 AND post_id = $2
	`, accountID.String(), postID.String())
	if err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "delete like").
			With("post_id", postID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return false, retry.RetryableError(oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "delete like").
			With("post_id", postID.String()).
			Errorf("like row vanished before delete"))
	}

	result, err = tx.Exec(ctx, `
		UPDATE posts SET likes_count = likes_count - 1 WHERE id = $1
	`, postID.String())
	if err != nil {
		return false, oops.Code("LIKE_TOGGLE_FAILED").
			With("operation", "decrement likes_count").
			With("post_id", postID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return false, oops.Code("POST_NOT_FOUND").
			With("post_id", postID.String()).
			Wrap(feed.ErrNotFound)
	}
	return false, nil
}

// GetPost retrieves a single post by id.
func (r *PostRepository) GetPost(ctx context.Context, id ulid.ULID) (*feed.Post, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, author_id, content, image_url,
		       likes_count, comments_count, created_at, updated_at
		FROM posts
		WHERE id = $1
	`, id.String())

	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("POST_NOT_FOUND").
			With("id", id.String()).
			Wrap(feed.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("POST_GET_FAILED").
			With("operation", "get post by id").
			With("id", id.String()).
			Wrap(err)
	}
	return post, nil
}

// scanPost scans a single row into a Post.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPost(row pgx.Row) (*feed.Post, error) {
	var (
		idStr         string
		authorIDStr   string
		content       string
		imageURL      *string
		likesCount    int
		commentsCount int
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&idStr,
		&authorIDStr,
		&content,
		&imageURL,
		&likesCount,
		&commentsCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("POST_SCAN_FAILED").
			With("operation", "scan post").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("POST_INVALID_ID").
			With("operation", "parse post id").
			With("id", idStr).
			Wrap(err)
	}
	authorID, err := ulid.Parse(authorIDStr)
	if err != nil {
		return nil, oops.Code("POST_INVALID_AUTHOR_ID").
			With("operation", "parse author id").
			With("author_id", authorIDStr).
			Wrap(err)
	}

	return &feed.Post{
		ID:            id,
		AuthorID:      authorID,
		Content:       content,
		ImageURL:      imageURL,
		LikesCount:    likesCount,
		CommentsCount: commentsCount,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

// scanFeedRow scans a feed row, with the trailing liked column only when the
// query ran with a viewer.
func scanFeedRow(rows pgx.Rows, withViewer bool) (*feed.PostWithAuthor, error) {
	var (
		idStr       string
		authorIDStr string
		row         feed.PostWithAuthor
		liked       bool
	)

	dest := []any{
		&idStr,
		&authorIDStr,
		&row.Content,
		&row.ImageURL,
		&row.LikesCount,
		&row.CommentsCount,
		&row.CreatedAt,
		&row.UpdatedAt,
		&row.AuthorUsername,
		&row.AuthorDisplayName,
		&row.AuthorAvatarURL,
	}
	if withViewer {
		dest = append(dest, &liked)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, oops.Code("FEED_SCAN_FAILED").
			With("operation", "scan feed row").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("POST_INVALID_ID").
			With("operation", "parse post id").
			With("id", idStr).
			Wrap(err)
	}
	authorID, err := ulid.Parse(authorIDStr)
	if err != nil {
		return nil, oops.Code("POST_INVALID_AUTHOR_ID").
			With("operation", "parse author id").
			With("author_id", authorIDStr).
			Wrap(err)
	}

	row.ID = id
	row.AuthorID = authorID
	if withViewer {
		row.Liked = &liked
	}
	return &row, nil
}

// Compile-time interface check.
var _ feed.PostRepository = (*PostRepository)(nil)
