package datastore

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the result cache consumed by analytics queries. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Flush()
}

// goCacheAdapter wraps patrickmn/go-cache behind the Cache interface.
type goCacheAdapter struct {
	inner *gocache.Cache
}

// NewMemoryCache returns an in-process Cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) Cache {
	return &goCacheAdapter{
		inner: gocache.New(defaultTTL, 2*defaultTTL),
	}
}

func (c *goCacheAdapter) Get(key string) (any, bool) {
	return c.inner.Get(key)
}

func (c *goCacheAdapter) Set(key string, value any, ttl time.Duration) {
	c.inner.Set(key, value, ttl)
}

func (c *goCacheAdapter) Delete(key string) {
	c.inner.Delete(key)
}

func (c *goCacheAdapter) Flush() {
	c.inner.Flush()
}

// cached runs fetch through the installed cache. With no cache installed it
// calls fetch directly. The operation name is used for metrics only and
// must stay low-cardinality; the key carries the query parameters.
func cached[T any](ds *DataStore, operation, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if ds.cache == nil {
		return fetch()
	}
	if v, ok := ds.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			ds.metrics.RecordCacheOperation(operation, "hit")
			return typed, nil
		}
	}
	ds.metrics.RecordCacheOperation(operation, "miss")
	value, err := fetch()
	if err != nil {
		return value, err
	}
	ds.cache.Set(key, value, ttl)
	return value, nil
}
