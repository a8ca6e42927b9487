// Package logger builds the application's slog.Logger from environment
// configuration: JSON output for production log aggregation, text for
// local development.
package logger
