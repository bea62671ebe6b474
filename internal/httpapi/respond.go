// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/driftline/driftline/pkg/errutil"
)

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client is gone
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, apiResponse{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: status < 400, Message: message})
}

// writeError maps an error to a status code and envelope. Client errors
// carry the error message; server errors carry a generic message and the
// full error goes to the log.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(logger, "request failed", err)
		writeJSON(w, status, apiResponse{Success: false, Message: "internal server error"})
		return
	}
	writeJSON(w, status, apiResponse{Success: false, Message: errorMessage(err)})
}

// statusFromError maps error codes to HTTP status codes.
func statusFromError(err error) int {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return http.StatusInternalServerError
	}
	code := oopsErr.Code()
	switch {
	case code == "ACCOUNT_CONFLICT":
		return http.StatusConflict
	case code == "AUTH_INVALID_CREDENTIALS" || code == "AUTH_INVALID_TOKEN":
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return http.StatusNotFound
	case strings.Contains(code, "_INVALID_") || code == "AUTH_EMPTY_PASSWORD":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the outermost message without wrapped causes, so a
// validation error reads cleanly and storage detail never reaches clients.
func errorMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
