// Package cache provides a small read-through byte cache for HTTP handlers
// that serve data that changes rarely relative to how often it's read
// (credential listings, agent-registry listings). It mirrors the
// primary/secondary fallback shape the teacher's internal/memory package
// uses for vector stores, generalized from "vector store with a backup"
// to "distributed cache with an in-process backup".
package cache

import (
	"context"
	"time"
)

// Cache stores and retrieves opaque byte values under a string key with a
// per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
