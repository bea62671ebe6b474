// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package feed implements the content domain: posts, the reverse-chronological
// feed, and like membership.
//
// # Domain Types
//
//   - Post: a single piece of content with its counters.
//   - PostWithAuthor: a feed row joined with author fields and, for an
//     authenticated viewer, whether that viewer has liked the post.
//   - FeedQuery: pagination window, clamped to service limits.
//
// # Consistency
//
// Counter columns (posts_count on accounts, likes_count on posts) are
// denormalized. Repositories move a counter and its backing rows inside a
// single transaction, so the counters never drift from the row counts they
// summarize.
package feed
