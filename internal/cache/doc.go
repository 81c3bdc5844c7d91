// Package cache provides byte-value caching for the access filter.
//
// Two implementations are available: an in-memory LRU cache for single
// instance deployments and a Redis-backed cache for sharing decisions
// across instances.
package cache
