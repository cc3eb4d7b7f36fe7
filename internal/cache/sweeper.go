package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSweepInterval is the background purge period.
const DefaultSweepInterval = 5 * time.Minute

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	ID             string        `json:"id"`
	Started        time.Time     `json:"started"`
	Elapsed        time.Duration `json:"elapsed"`
	MemoryRemoved  int           `json:"memory_removed"`
	DurableRemoved int64         `json:"durable_removed"`
	Err            error         `json:"-"`
}

// Start launches the background sweeper. Calling Start more than once, or
// after Close, is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	m.sweepWG.Add(1)
	go m.sweepLoop()
}

// Close stops the background sweeper and waits for it to exit. Injected
// backend handles are not closed; they belong to the caller.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.sweepCancel()
	m.sweepWG.Wait()
	return nil
}

func (m *Manager) sweepLoop() {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweepCtx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.sweepCtx)
		}
	}
}

// Sweep runs one purge pass: expired entries are dropped from every memory
// cache and expired or invalidated rows are bulk-deleted from the durable
// store. Redis is never scanned; its native TTL owns that tier. A failing
// pass is logged and counted, never fatal; the next interval retries.
func (m *Manager) Sweep(ctx context.Context) SweepReport {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, "cache.sweep")
	defer span.End()
	defer m.observe("sweep", start)

	report := SweepReport{
		ID:      uuid.NewString(),
		Started: start,
	}

	for _, mc := range m.memory {
		report.MemoryRemoved += mc.RemoveExpired(start)
	}

	if m.durable != nil {
		n, err := m.durable.DeleteExpired(ctx, start)
		report.DurableRemoved = n
		if err != nil {
			report.Err = err
			atomic.AddInt64(&m.counters.errors, 1)
			if isBusyErr(err) {
				m.logger.Warn("durable store busy during sweep, retrying next interval",
					zap.String("sweep_id", report.ID))
			} else {
				m.logger.Error("sweep failed against durable store",
					zap.String("sweep_id", report.ID),
					zap.Error(err))
			}
		}
	}

	report.Elapsed = m.now().Sub(start)

	m.logger.Debug("sweep completed",
		zap.String("sweep_id", report.ID),
		zap.Int("memory_removed", report.MemoryRemoved),
		zap.Int64("durable_removed", report.DurableRemoved),
		zap.Duration("elapsed", report.Elapsed))

	m.mu.Lock()
	m.lastSweep = report
	m.mu.Unlock()
	return report
}

// LastSweep returns the most recent sweep report.
func (m *Manager) LastSweep() SweepReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSweep
}
