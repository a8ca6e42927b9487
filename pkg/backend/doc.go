// Package backend is the HTTP client for the internal data-processing
// backend that hosts provisioned organizations. It exposes the two
// operations this core drives (initial onboarding and billing-state sync)
// and the error classification the sync queue depends on: 4xx permanent,
// 5xx/timeout/network transient.
package backend
