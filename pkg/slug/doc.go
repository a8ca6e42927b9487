// Package slug derives URL-safe, globally-unique organization identifiers
// from display names.
//
// A derived slug is `<name>_<base36 millisecond timestamp>`, where the name
// portion is the first whitespace-delimited token lowercased and stripped
// to alphanumerics. The timestamp gives unordered uniqueness across
// unrelated names; same-millisecond collisions are resolved by a short
// random suffix, retried a bounded number of times.
//
// The Allocator's availability check is advisory. Concurrent allocations
// are ultimately serialized by the tenants.slug uniqueness constraint, and
// callers retry with slug.Next after a constraint violation.
package slug
