// Package syncqueue is the outbox reconciling billing-state changes into
// the provisioning backend. When a synchronous backend call fails with a
// retryable error, the change intent is persisted here and drained by a
// periodic sweep. Failures are classified: 4xx parks the entry as
// permanently failed, 5xx/timeout/network leaves it eligible for an
// explicit requeue, and nothing is ever silently dropped.
package syncqueue
