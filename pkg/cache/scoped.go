package cache

import (
	"context"
	"time"
)

// Scoped wraps a Cache and prefixes every key, isolating one namespace
// (for example one registry URL) inside a shared backend.
//
//	npmCache := cache.NewScoped(shared, "registry.npmjs.org:")
//	npmCache.Set(ctx, cache.MetaKey("react"), data, cache.TTLMeta)
//	// stored as "registry.npmjs.org:meta:react"
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped creates a prefixed view of inner. A nil inner is a NullCache.
func NewScoped(inner Cache, prefix string) *Scoped {
	if inner == nil {
		inner = NewNullCache()
	}
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close does not close the shared backend.
func (s *Scoped) Close() error { return nil }

var _ Cache = (*Scoped)(nil)
