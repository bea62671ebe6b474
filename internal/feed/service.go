// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package feed

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service coordinates content operations over a PostRepository.
type Service struct {
	posts  PostRepository
	logger *slog.Logger
}

// NewService creates a content service using the default logger.
func NewService(posts PostRepository) (*Service, error) {
	return NewServiceWithLogger(posts, slog.Default())
}

// NewServiceWithLogger creates a content service with the given logger.
func NewServiceWithLogger(posts PostRepository, logger *slog.Logger) (*Service, error) {
	if posts == nil {
		return nil, oops.Errorf("post repository is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{posts: posts, logger: logger}, nil
}

// CreatePost validates content and stores a new post for the author.
func (s *Service) CreatePost(ctx context.Context, authorID ulid.ULID, content string, imageURL *string) (*Post, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	post := NewPost(authorID, content, imageURL)
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("post created",
		"post_id", post.ID.String(),
		"author_id", authorID.String())
	return post, nil
}

// Feed returns a page of the reverse-chronological feed.
func (s *Service) Feed(ctx context.Context, viewerID *ulid.ULID, query FeedQuery) ([]PostWithAuthor, error) {
	query, err := query.Normalize()
	if err != nil {
		return nil, err
	}
	return s.posts.Feed(ctx, viewerID, query)
}

// ToggleLike flips like membership and reports the resulting state.
func (s *Service) ToggleLike(ctx context.Context, accountID, postID ulid.ULID) (bool, error) {
	liked, err := s.posts.ToggleLike(ctx, accountID, postID)
	if err != nil {
		return false, err
	}

	s.logger.Info("like toggled",
		"account_id", accountID.String(),
		"post_id", postID.String(),
		"liked", liked)
	return liked, nil
}

// GetPost retrieves a single post.
func (s *Service) GetPost(ctx context.Context, id ulid.ULID) (*Post, error) {
	return s.posts.GetPost(ctx, id)
}
