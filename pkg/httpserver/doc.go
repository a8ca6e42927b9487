// Package httpserver runs a net/http server with sane timeouts, signal
// handling, and graceful shutdown.
package httpserver
