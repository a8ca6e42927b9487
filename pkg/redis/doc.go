// Package redis connects the go-redis client used by the tenant read
// cache, with startup retries and a health check helper.
package redis
