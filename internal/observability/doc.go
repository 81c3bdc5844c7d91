// Package observability provides structured logging and tracing for the
// access filter daemon.
package observability
