package flatfilter

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems;
// package promcollector provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordLoad is called after each load attempt. bytes is the stored
	// size read from the blob store, err is nil if the load succeeded.
	RecordLoad(bytes int64, duration time.Duration, err error)

	// RecordSwap is called after a new generation becomes current.
	RecordSwap(generation uint64, numFilters int)

	// RecordReject is called when a load is refused at stage (see the
	// Stage constants).
	RecordReject(stage string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordSwap(uint64, int)                 {}
func (NoopMetricsCollector) RecordReject(string)                    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadBytes      atomic.Int64
	LoadTotalNanos atomic.Int64
	SwapCount      atomic.Int64
	Generation     atomic.Uint64
	NumFilters     atomic.Int64

	mu      sync.Mutex
	rejects map[string]int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(bytes int64, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadBytes.Add(bytes)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordSwap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSwap(generation uint64, numFilters int) {
	b.SwapCount.Add(1)
	b.Generation.Store(generation)
	b.NumFilters.Store(int64(numFilters))
}

// RecordReject implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReject(stage string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejects == nil {
		b.rejects = make(map[string]int64)
	}
	b.rejects[stage]++
}

// GetStats returns a snapshot of all metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	b.mu.Lock()
	rejects := make(map[string]int64, len(b.rejects))
	for k, v := range b.rejects {
		rejects[k] = v
	}
	b.mu.Unlock()

	return BasicMetricsStats{
		LoadCount:    b.LoadCount.Load(),
		LoadErrors:   b.LoadErrors.Load(),
		LoadBytes:    b.LoadBytes.Load(),
		LoadAvgNanos: b.getAvgLoadNanos(),
		SwapCount:    b.SwapCount.Load(),
		Generation:   b.Generation.Load(),
		NumFilters:   b.NumFilters.Load(),
		Rejects:      rejects,
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount    int64
	LoadErrors   int64
	LoadBytes    int64
	LoadAvgNanos int64
	SwapCount    int64
	Generation   uint64
	NumFilters   int64
	Rejects      map[string]int64
}
