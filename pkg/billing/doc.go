// Package billing is the boundary to the payment provider: a narrow
// Provider contract (session retrieval, subscription retrieval, metadata
// writeback) with Stripe and Paddle implementations, validated boundary
// types instead of loosely-typed maps, and the total status mapping
// between the provider's vocabulary, the internal tenant statuses, and
// the provisioning backend's vocabulary.
//
// The provider is treated as authoritative. Completion re-fetches every
// record it needs; data relayed through the browser is never trusted.
package billing
