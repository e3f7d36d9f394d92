package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// --- mock for cache tests ---

type countingLabeler struct {
	calls  int
	result domain.PlaceLabels
	err    error
}

func (m *countingLabeler) ReverseLabel(_ context.Context, _, _ float64) (domain.PlaceLabels, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedLabeler tests ---

func TestCachedLabeler_CacheHit(t *testing.T) {
	inner := &countingLabeler{result: domain.PlaceLabels{City: "Albany", State: "NY"}}
	m := testMetrics()
	cached := NewCachedLabeler(inner, 10, m)

	r1, err := cached.ReverseLabel(context.Background(), 42.6526, -73.7562)
	require.NoError(t, err)
	assert.Equal(t, "Albany", r1.City)

	r2, err := cached.ReverseLabel(context.Background(), 42.6526, -73.7562)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LabelCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LabelCache.WithLabelValues("miss")))
}

func TestCachedLabeler_DifferentKeysMiss(t *testing.T) {
	inner := &countingLabeler{result: domain.PlaceLabels{State: "NY"}}
	cached := NewCachedLabeler(inner, 10, testMetrics())

	_, _ = cached.ReverseLabel(context.Background(), 42.6526, -73.7562)
	_, _ = cached.ReverseLabel(context.Background(), 40.7128, -74.0060)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedLabeler_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingLabeler{}
	cached := NewCachedLabeler(inner, 10, testMetrics())

	_, _ = cached.ReverseLabel(context.Background(), 0, 0)
	_, _ = cached.ReverseLabel(context.Background(), 0, 0)
	assert.Equal(t, 2, inner.calls, "empty results are retried")

	inner.err = errors.New("unavailable")
	_, err := cached.ReverseLabel(context.Background(), 1, 1)
	require.Error(t, err)
	inner.err = nil
	inner.result = domain.PlaceLabels{Country: "US"}
	r, err := cached.ReverseLabel(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "US", r.Country)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRU[string, domain.PlaceLabels](3)

	c.put("a", domain.PlaceLabels{City: "A"})
	c.put("b", domain.PlaceLabels{City: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.City)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRU[string, domain.PlaceLabels](2)

	c.put("a", domain.PlaceLabels{City: "A"})
	c.put("b", domain.PlaceLabels{City: "B"})
	c.put("c", domain.PlaceLabels{City: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.City)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.City)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRU[string, domain.PlaceLabels](2)

	c.put("a", domain.PlaceLabels{City: "A"})
	c.put("b", domain.PlaceLabels{City: "B"})

	c.get("a")

	// "b" is now least recently used.
	c.put("c", domain.PlaceLabels{City: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRU[string, domain.PlaceLabels](2)

	c.put("a", domain.PlaceLabels{City: "A1"})
	c.put("a", domain.PlaceLabels{City: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.City)
}

func TestLRUCache_BoundedSize(t *testing.T) {
	c := newLRU[int, domain.PlaceLabels](3)
	for i := range 10 {
		c.put(i, domain.PlaceLabels{})
	}
	assert.Equal(t, 3, c.len())
}

func TestKeyFor_RoundsToMicrodegrees(t *testing.T) {
	assert.Equal(t, keyFor(40.7580001, -73.9855), keyFor(40.7580004, -73.98550002))
	assert.NotEqual(t, keyFor(40.758, -73.9855), keyFor(40.758001, -73.9855))
}
