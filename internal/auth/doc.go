// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package auth provides identity primitives for Driftline: password hashing,
// signed identity tokens, and account management.
//
// # Domain Types
//
// Accounts should be created through NewAccount, which validates the
// candidate fields and stamps the generated ID and timestamps. Direct struct
// initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated accounts.
//
// # Services
//
// Service coordinates registration, login, and profile operations on top of
// an AccountRepository, a PasswordHasher, and a TokenService. TokenService
// issues and verifies stateless HS256 tokens; verification never consults
// the account store, so a deactivated account's outstanding tokens remain
// valid until they expire.
package auth
