// Package onboarding orchestrates tenant provisioning after a completed
// payment checkout: it verifies the checkout against the billing
// provider, enforces idempotency, allocates a unique tenant slug, inserts
// the tenant, and provisions it in the internal backend.
//
// The orchestration prefers degraded success over rollback: once the
// tenant row exists, a backend provisioning failure is reported as a flag
// on an otherwise successful result and reconciled later through the sync
// queue or an operator-triggered retry.
package onboarding
