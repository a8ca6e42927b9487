// Package pg bootstraps the PostgreSQL layer: pooled connections via
// pgx/v5 with startup retries, goose schema migrations, a health check,
// and error helpers shared by the stores (not-found detection, duplicate
// key detection, constraint-name extraction for disambiguating which
// uniqueness rule fired).
package pg
