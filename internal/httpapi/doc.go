// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package httpapi exposes the JSON API over HTTP.
//
// Routes are registered on a gorilla/mux router. Authenticated routes run
// behind the RequireIdentity middleware; the feed runs behind
// OptionalIdentity so anonymous reads work while authenticated reads carry
// viewer annotations. Responses use a {success, data, message} envelope and
// error codes map to HTTP status codes in respond.go. Internal failures are
// logged in full and answered with a generic message.
package httpapi
