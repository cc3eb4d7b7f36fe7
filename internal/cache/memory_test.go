package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var farFuture = time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

func memEntry(key string, size int64) *Entry {
	return &Entry{
		Key:              key,
		DataType:         EmployerFinancial,
		Payload:          []byte(`{}`),
		CreatedAt:        farFuture.Add(-24 * time.Hour),
		ExpiresAt:        farFuture,
		Valid:            true,
		SubscriptionTier: TierPremium,
		SizeBytes:        size,
	}
}

func TestMemoryCache_PutGet(t *testing.T) {
	mc := NewMemoryCache(100, nil)
	now := time.Now()

	require.NoError(t, mc.Put(memEntry("a", 10)))

	entry, ok := mc.Get("a", now)
	require.True(t, ok)
	assert.Equal(t, "a", entry.Key)
	assert.Equal(t, int64(1), entry.AccessCount)

	_, ok = mc.Get("missing", now)
	assert.False(t, ok)
}

func TestMemoryCache_Get_ReturnsSnapshot(t *testing.T) {
	mc := NewMemoryCache(100, nil)
	now := time.Now()

	require.NoError(t, mc.Put(memEntry("a", 10)))

	first, ok := mc.Get("a", now)
	require.True(t, ok)

	// Mutating the returned entry must not reach the resident copy
	first.Valid = false
	first.Key = "tampered"

	second, ok := mc.Get("a", now)
	require.True(t, ok)
	assert.Equal(t, "a", second.Key)
	assert.True(t, second.Valid)
	assert.Equal(t, int64(2), second.AccessCount)
}

func TestMemoryCache_LRUOrder(t *testing.T) {
	var evicted []string
	mc := NewMemoryCache(30, func(e *Entry) { evicted = append(evicted, e.Key) })
	now := time.Now()

	// Fill the budget with A, B, C, then touch A so B is the oldest
	require.NoError(t, mc.Put(memEntry("a", 10)))
	require.NoError(t, mc.Put(memEntry("b", 10)))
	require.NoError(t, mc.Put(memEntry("c", 10)))

	_, ok := mc.Get("a", now)
	require.True(t, ok)

	// D displaces exactly the least recently used entry
	require.NoError(t, mc.Put(memEntry("d", 10)))

	assert.Equal(t, []string{"b"}, evicted)
	assert.True(t, mc.Contains("a", now))
	assert.True(t, mc.Contains("c", now))
	assert.True(t, mc.Contains("d", now))
	assert.False(t, mc.Contains("b", now))
}

func TestMemoryCache_BudgetInvariant(t *testing.T) {
	mc := NewMemoryCache(100, nil)

	// The resident total never exceeds the budget, whatever the write mix
	sizes := []int64{30, 50, 20, 40, 10, 60, 5, 100}
	for i, size := range sizes {
		require.NoError(t, mc.Put(memEntry(fmt.Sprintf("key-%d", i), size)))
		assert.LessOrEqual(t, mc.SizeBytes(), int64(100), "after put %d", i)
	}
}

func TestMemoryCache_Put_Oversized(t *testing.T) {
	mc := NewMemoryCache(100, nil)

	require.NoError(t, mc.Put(memEntry("resident", 50)))

	err := mc.Put(memEntry("whale", 101))
	assert.ErrorIs(t, err, ErrEntryTooLarge)

	// The rejected write must not disturb residents
	assert.Equal(t, 1, mc.Len())
	assert.Equal(t, int64(50), mc.SizeBytes())
}

func TestMemoryCache_Put_Replace(t *testing.T) {
	mc := NewMemoryCache(100, nil)
	now := time.Now()

	require.NoError(t, mc.Put(memEntry("a", 10)))

	bigger := memEntry("a", 25)
	bigger.Payload = []byte(`{"revenue":2}`)
	require.NoError(t, mc.Put(bigger))

	assert.Equal(t, 1, mc.Len())
	assert.Equal(t, int64(25), mc.SizeBytes())

	entry, ok := mc.Get("a", now)
	require.True(t, ok)
	assert.Equal(t, `{"revenue":2}`, string(entry.Payload))
}

func TestMemoryCache_Put_ReplaceEvictsOthers(t *testing.T) {
	var evicted []string
	mc := NewMemoryCache(30, func(e *Entry) { evicted = append(evicted, e.Key) })
	now := time.Now()

	require.NoError(t, mc.Put(memEntry("a", 10)))
	require.NoError(t, mc.Put(memEntry("b", 10)))
	require.NoError(t, mc.Put(memEntry("c", 10)))

	// Growing A past the budget evicts older entries, never A itself
	require.NoError(t, mc.Put(memEntry("a", 28)))

	assert.True(t, mc.Contains("a", now))
	assert.ElementsMatch(t, []string{"b", "c"}, evicted)
	assert.LessOrEqual(t, mc.SizeBytes(), int64(30))
}

func TestMemoryCache_Get_ExpiredRemoved(t *testing.T) {
	evictions := 0
	mc := NewMemoryCache(100, func(*Entry) { evictions++ })
	now := time.Now()

	entry := memEntry("stale", 10)
	entry.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, mc.Put(entry))

	_, ok := mc.Get("stale", now)
	assert.False(t, ok)
	assert.Equal(t, 0, mc.Len())

	// Expiry removals are not budget evictions
	assert.Equal(t, 0, evictions)
}

func TestMemoryCache_Remove(t *testing.T) {
	mc := NewMemoryCache(100, nil)

	require.NoError(t, mc.Put(memEntry("a", 10)))

	assert.True(t, mc.Remove("a"))
	assert.Equal(t, int64(0), mc.SizeBytes())

	// Removing an absent key is a no-op
	assert.False(t, mc.Remove("a"))
}

func TestMemoryCache_RemoveExpired(t *testing.T) {
	mc := NewMemoryCache(100, nil)
	now := time.Now()

	fresh := memEntry("fresh", 10)
	stale := memEntry("stale", 10)
	stale.ExpiresAt = now.Add(-time.Minute)
	invalidated := memEntry("invalidated", 10)
	invalidated.Valid = false

	require.NoError(t, mc.Put(fresh))
	require.NoError(t, mc.Put(stale))
	require.NoError(t, mc.Put(invalidated))

	removed := mc.RemoveExpired(now)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, mc.Len())
	assert.True(t, mc.Contains("fresh", now))
}

func TestMemoryCache_RemoveFunc(t *testing.T) {
	mc := NewMemoryCache(100, nil)
	now := time.Now()

	warn := memEntry("warn", 10)
	warn.DataType = WARNNotices
	require.NoError(t, mc.Put(memEntry("financial", 10)))
	require.NoError(t, mc.Put(warn))

	removed := mc.RemoveFunc(func(e *Entry) bool { return e.DataType == WARNNotices })
	assert.Equal(t, 1, removed)
	assert.True(t, mc.Contains("financial", now))
	assert.False(t, mc.Contains("warn", now))
}

func TestMemoryCache_Clear(t *testing.T) {
	mc := NewMemoryCache(100, nil)

	require.NoError(t, mc.Put(memEntry("a", 10)))
	require.NoError(t, mc.Put(memEntry("b", 10)))

	mc.Clear()
	assert.Equal(t, 0, mc.Len())
	assert.Equal(t, int64(0), mc.SizeBytes())
}

func TestMemoryCache_Resize(t *testing.T) {
	var evicted []string
	mc := NewMemoryCache(40, func(e *Entry) { evicted = append(evicted, e.Key) })
	now := time.Now()

	require.NoError(t, mc.Put(memEntry("a", 10)))
	require.NoError(t, mc.Put(memEntry("b", 10)))
	require.NoError(t, mc.Put(memEntry("c", 10)))
	require.NoError(t, mc.Put(memEntry("d", 10)))

	// Shrinking evicts from the LRU tail until the set fits
	mc.Resize(20)

	assert.Equal(t, int64(20), mc.Budget())
	assert.Equal(t, []string{"a", "b"}, evicted)
	assert.True(t, mc.Contains("c", now))
	assert.True(t, mc.Contains("d", now))

	// Growing frees headroom without touching residents
	mc.Resize(100)
	require.NoError(t, mc.Put(memEntry("e", 50)))
	assert.Equal(t, 3, mc.Len())
}
