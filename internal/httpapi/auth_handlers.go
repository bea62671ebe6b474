// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftline/driftline/internal/auth"
)

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse starts a client session: the token plus the hash-free
// profile of the account it belongs to.
type sessionResponse struct {
	Token string       `json:"token"`
	User  auth.Profile `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, token, err := s.accounts.Register(r.Context(), auth.Candidate{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusCreated, sessionResponse{
		Token: token,
		User:  account.Profile(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, token, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if statusFromError(err) == http.StatusUnauthorized {
			s.recordAuthFailure("invalid_credentials")
		}
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusOK, sessionResponse{
		Token: token,
		User:  account.Profile(),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	profile, err := s.accounts.Profile(r.Context(), username)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, http.StatusOK, profile)
}
