// Package middleware provides HTTP middleware for the access filter
// daemon: request IDs, request logging and rate limiting.
package middleware
