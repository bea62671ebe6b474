// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/feed"
)

type createPostRequest struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url,omitempty"`
}

type toggleLikeResponse struct {
	Liked bool `json:"liked"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	query := feed.FeedQuery{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		query.Offset = n
	}

	var viewerID *ulid.ULID
	if identity, ok := IdentityFromContext(r.Context()); ok {
		viewerID = &identity.ID
	}

	posts, err := s.posts.Feed(r.Context(), viewerID, query)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusOK, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	post, err := s.posts.CreatePost(r.Context(), identity.ID, req.Content, req.ImageURL)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusCreated, post)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	postID, err := ulid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid post id")
		return
	}

	liked, err := s.posts.ToggleLike(r.Context(), identity.ID, postID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusOK, toggleLikeResponse{Liked: liked})
}
