// Package gate meters AI features against per-user credit budgets.
//
// Callers wrap every expensive operation in a two-phase contract:
//
//  1. Authorize consults the response cache, then the feature cooldown, then
//     the remaining period budget. A cache hit is served at zero cost.
//  2. After the operation succeeds, Settle deducts the full cost with an
//     atomic conditional update and caches the result.
//
// Authorize does not reserve credits. Two concurrent requests may both be
// allowed, and the one whose Settle loses the race is denied with
// INSUFFICIENT_CREDITS. A request abandoned between the two phases is never
// charged.
package gate
