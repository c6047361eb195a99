// Package cache provides the read-through key-value store shared by the
// registry client and the package ranker.
//
// Entries are opaque byte slices with an optional time-to-live. Two key
// families are used across stackfix:
//
//	meta:<name>     raw registry metadata, short TTL ([TTLMeta])
//	ranking:<name>  computed rank and tier, long TTL ([TTLRanking])
//
// Backends:
//   - [FileCache]: one JSON file per key, for CLI usage
//   - [MemoryCache]: in-process map with an injectable [Clock]
//   - [RedisCache]: shared across processes and concurrent runs
//   - [NullCache]: caching disabled
//
// Operations on distinct keys never coordinate. Two concurrent misses on the
// same key may both fetch and both store; the last write wins.
package cache

import (
	"context"
	"time"
)

// Default time-to-live per key family.
const (
	// TTLRanking is long because popularity and tier change slowly.
	TTLRanking = 24 * time.Hour

	// TTLMeta bounds how stale a package's version list may get.
	TTLMeta = time.Hour
)

// Key prefixes.
const (
	PrefixMeta    = "meta:"
	PrefixRanking = "ranking:"
)

// Cache is a key-value store with per-entry expiration.
type Cache interface {
	// Get returns the stored value and true on a fresh hit. Expired and
	// missing entries both report a miss with a nil error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// MetaKey returns the cache key for a package's registry metadata.
func MetaKey(name string) string { return PrefixMeta + name }

// RankingKey returns the cache key for a package's computed ranking.
func RankingKey(name string) string { return PrefixRanking + name }

// Clock abstracts time for expiration checks so tests can advance it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// NullCache disables caching: every lookup misses and writes are dropped.
// The registry client falls back to it when no cache is configured.
type NullCache struct{}

func NewNullCache() *NullCache { return &NullCache{} }

func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NullCache) Delete(context.Context, string) error { return nil }

func (NullCache) Close() error { return nil }

var _ Cache = NullCache{}
