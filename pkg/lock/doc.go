// Package lock implements a short-lived distributed mutex as a datastore
// row with a uniqueness constraint and a TTL column. No in-process mutex
// can serve here because completion requests land on multiple server
// instances; no consensus protocol is needed because correctness rests on
// the insert-time uniqueness constraint, not on the lock staying live.
//
// Locks are keyed by checkout-session id and expire lazily: a reader that
// finds an expired row treats it as absent and reaps it. A background
// reaper is unnecessary but would be harmless.
package lock
