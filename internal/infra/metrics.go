package infra

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics is a process-wide set of monotonic counters served on GET /metrics.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]*atomic.Int64)}
}

// Inc increments the named counter by 1.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increments the named counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		c, ok = m.counters[name]
		if !ok {
			c = &atomic.Int64{}
			m.counters[name] = c
		}
		m.mu.Unlock()
	}
	c.Add(delta)
}

// Set overwrites the named counter (used for gauges like connection count).
func (m *Metrics) Set(name string, value int64) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		c, ok = m.counters[name]
		if !ok {
			c = &atomic.Int64{}
			m.counters[name] = c
		}
		m.mu.Unlock()
	}
	c.Store(value)
}

// Get returns the current value of a counter (0 if never touched).
func (m *Metrics) Get(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns a stable copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		out[name] = c.Load()
	}
	return out
}

// Names returns all counter names sorted, for deterministic rendering.
func (m *Metrics) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
