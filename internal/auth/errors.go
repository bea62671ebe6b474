// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested account does not exist or is
// deactivated.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a username or email is already taken by an
// active account.
var ErrConflict = errors.New("already exists")
