// Package config provides YAML configuration for the access filter
// daemon: server settings, logging, tracing, the rule table, fallback
// routes, caching and rate limiting.
package config
