package cache

import (
	"sync/atomic"
	"time"
)

// counters accumulate across all tiers; fields are accessed with
// sync/atomic only.
type counters struct {
	requests  int64
	hits      int64
	misses    int64
	redisHits int64
	dbHits    int64
	evictions int64
	errors    int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Requests      int64   `json:"requests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	RedisHits     int64   `json:"redis_hits"`
	DBHits        int64   `json:"db_hits"`
	Evictions     int64   `json:"evictions"`
	Errors        int64   `json:"errors"`
	Entries       int     `json:"entries"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	HitRate       float64 `json:"hit_rate"`
}

// OperationObserver receives per-operation timings for external metrics
// pipelines. Implementations must be safe for concurrent use.
type OperationObserver interface {
	ObserveOperation(op string, elapsed time.Duration)
}

// Stats returns a snapshot of the manager's counters and memory usage.
// Hits counts every successful get regardless of serving tier; RedisHits
// and DBHits are the subsets not served from memory.
func (m *Manager) Stats() Stats {
	s := Stats{
		Requests:  atomic.LoadInt64(&m.counters.requests),
		Hits:      atomic.LoadInt64(&m.counters.hits),
		Misses:    atomic.LoadInt64(&m.counters.misses),
		RedisHits: atomic.LoadInt64(&m.counters.redisHits),
		DBHits:    atomic.LoadInt64(&m.counters.dbHits),
		Evictions: atomic.LoadInt64(&m.counters.evictions),
		Errors:    atomic.LoadInt64(&m.counters.errors),
	}

	var bytes int64
	for _, mc := range m.memory {
		bytes += mc.SizeBytes()
		s.Entries += mc.Len()
	}
	s.MemoryUsageMB = float64(bytes) / (1024 * 1024)

	if s.Requests > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Requests) * 100
	}
	return s
}

func (m *Manager) observe(op string, start time.Time) {
	if m.observer != nil {
		m.observer.ObserveOperation(op, m.now().Sub(start))
	}
}
