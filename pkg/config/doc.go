// Package config loads typed configuration structs from environment
// variables (with optional .env file support for local development).
// Parsed configs are cached per type for the process lifetime.
package config
