// Package cache implements the content-addressed response cache.
//
// Entries are keyed by (user, feature, request hash), where the request
// hash is the SHA-256 of the canonical JSON encoding of the request input.
// Canonical encoding sorts object keys, so two inputs that differ only in
// key order hash identically.
//
// Lookups filter on ExpiresAt > now on every read. Physical deletion of
// expired entries is left to the Sweeper, which runs DeleteExpired on a cron
// schedule and is never required for lookup correctness.
//
// The cache is an optimization. Callers treat every Lookup error as a miss
// and every Store error as a skipped write.
package cache
