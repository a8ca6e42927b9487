// Package tenant holds the tenant data model and its Postgres store:
// uniquely-slugged organization rows with billing state, plan limits
// sourced from the payment provider, locale defaults, backend
// provisioning flags, and a soft-delete lifecycle. A redis read cache
// wraps the slug lookup used by every dashboard request.
package tenant
