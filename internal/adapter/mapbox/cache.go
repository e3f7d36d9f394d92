package mapbox

import (
	"container/list"
	"context"
	"math"
	"sync"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// CachedLabeler wraps a Labeler with an in-memory LRU cache.
type CachedLabeler struct {
	inner   domain.Labeler
	cache   *lru[coordKey, domain.PlaceLabels]
	metrics *observability.Metrics
}

// NewCachedLabeler creates a cache decorator around a labeler.
func NewCachedLabeler(inner domain.Labeler, maxEntries int, metrics *observability.Metrics) *CachedLabeler {
	return &CachedLabeler{
		inner:   inner,
		cache:   newLRU[coordKey, domain.PlaceLabels](maxEntries),
		metrics: metrics,
	}
}

// ReverseLabel serves repeated coordinates from the cache.
func (c *CachedLabeler) ReverseLabel(ctx context.Context, lat, lon float64) (domain.PlaceLabels, error) {
	key := keyFor(lat, lon)
	if result, ok := c.cache.get(key); ok {
		c.metrics.LabelCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.LabelCache.WithLabelValues("miss").Inc()
	result, err := c.inner.ReverseLabel(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if !result.Empty() {
		c.cache.put(key, result)
	}
	return result, nil
}

// coordKey is a coordinate rounded to 1e-6 degrees.
type coordKey struct{ lat, lon int64 }

func keyFor(lat, lon float64) coordKey {
	return coordKey{lat: int64(math.Round(lat * 1e6)), lon: int64(math.Round(lon * 1e6))}
}

// lru is a mutex-guarded least-recently-used map.
type lru[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List // front is most recently used
	items      map[K]*list.Element
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

func newLRU[K comparable, V any](maxEntries int) *lru[K, V] {
	return &lru[K, V]{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[K]*list.Element),
	}
}

func (c *lru[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).value, true
}

func (c *lru[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruItem[K, V]{key: key, value: value})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem[K, V]).key)
	}
}

func (c *lru[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
