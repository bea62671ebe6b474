// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Content and pagination limits.
const (
	MaxContentLength = 500
	DefaultFeedLimit = 20
	MaxFeedLimit     = 50
)

// ErrNotFound indicates a post or referenced account does not exist.
var ErrNotFound = errors.New("not found")

// Post is a single piece of content.
type Post struct {
	ID            ulid.ULID `json:"id"`
	AuthorID      ulid.ULID `json:"author_id"`
	Content       string    `json:"content"`
	ImageURL      *string   `json:"image_url,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostWithAuthor is a feed row: a post joined with its author's public
// fields. Liked is nil for anonymous viewers and set for authenticated ones.
type PostWithAuthor struct {
	Post
	AuthorUsername    string  `json:"author_username"`
	AuthorDisplayName *string `json:"author_display_name,omitempty"`
	AuthorAvatarURL   *string `json:"author_avatar_url,omitempty"`
	Liked             *bool   `json:"liked,omitempty"`
}

// FeedQuery is a pagination window over the reverse-chronological feed.
type FeedQuery struct {
	Limit  int
	Offset int
}

// Normalize clamps the window to service limits. A non-positive limit
// falls back to the default; a negative offset is rejected.
func (q FeedQuery) Normalize() (FeedQuery, error) {
	if q.Offset < 0 {
		return FeedQuery{}, oops.Code("FEED_INVALID_OFFSET").
			With("offset", q.Offset).
			Errorf("offset must not be negative")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultFeedLimit
	}
	if q.Limit > MaxFeedLimit {
		q.Limit = MaxFeedLimit
	}
	return q, nil
}

// ValidateContent checks post content against length limits.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return oops.Code("POST_INVALID_CONTENT").
			Errorf("content must not be empty")
	}
	if len(content) > MaxContentLength {
		return oops.Code("POST_INVALID_CONTENT").
			With("length", len(content)).
			With("max", MaxContentLength).
			Errorf("content must be at most %d bytes", MaxContentLength)
	}
	return nil
}

// NewPost constructs a post for insertion. Content must already be validated.
func NewPost(authorID ulid.ULID, content string, imageURL *string) *Post {
	now := time.Now().UTC()
	return &Post{
		ID:        ulid.Make(),
		AuthorID:  authorID,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PostRepository provides post persistence with counter consistency.
type PostRepository interface {
	// CreatePost inserts the post and increments the author's posts_count
	// in the same transaction. Returns ErrNotFound (wrapped) when the
	// author does not exist or is inactive.
	CreatePost(ctx context.Context, post *Post) error

	// Feed returns posts newest first. When viewerID is set each row's
	// Liked field reports that viewer's like membership.
	Feed(ctx context.Context, viewerID *ulid.ULID, query FeedQuery) ([]PostWithAuthor, error)

	// ToggleLike flips like membership for (accountID, postID) and moves
	// likes_count in the same transaction. Returns the resulting state:
	// true when the like now exists. Returns ErrNotFound (wrapped) when
	// the post does not exist.
	ToggleLike(ctx context.Context, accountID, postID ulid.ULID) (bool, error)

	// GetPost retrieves a single post by id.
	GetPost(ctx context.Context, id ulid.ULID) (*Post, error)
}
