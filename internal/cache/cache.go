// Package cache provides bounded in-memory caches owned by store instances.
package cache

import (
	"maps"
	"slices"
	"sync"
)

// DefaultAxisEntries bounds the number of cached time axes per store.
const DefaultAxisEntries = 32

// AxisKey identifies the shape of a transient time axis.
type AxisKey struct {
	Samples    int
	SampleRate int
	Pretrigger int
}

// TimeAxes is a thread-safe, bounded LRU cache of time axes.
type TimeAxes struct {
	mu      sync.Mutex
	max     int
	entries map[AxisKey][]float32
	order   []AxisKey // least recently used first
}

// NewTimeAxes returns a cache holding at most maxEntries axes.
func NewTimeAxes(maxEntries int) *TimeAxes {
	if maxEntries < 1 {
		maxEntries = DefaultAxisEntries
	}
	return &TimeAxes{
		max:     maxEntries,
		entries: make(map[AxisKey][]float32, maxEntries),
	}
}

// Get returns the axis (i - pretrigger) / samplerate for i in [0, samples),
// computing it on a miss. The returned slice is shared and must not be
// modified.
func (c *TimeAxes) Get(key AxisKey) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if axis, ok := c.entries[key]; ok {
		c.touch(key)
		return axis
	}

	axis := make([]float32, max(key.Samples, 0))
	if key.SampleRate > 0 {
		sr := float64(key.SampleRate)
		for i := range axis {
			axis[i] = float32(float64(i-key.Pretrigger) / sr)
		}
	}

	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = axis
	c.order = append(c.order, key)
	return axis
}

func (c *TimeAxes) touch(key AxisKey) {
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = append(c.order[:i], c.order[i+1:]...)
		c.order = append(c.order, key)
	}
}

// Len returns the number of cached axes.
func (c *TimeAxes) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops all cached axes.
func (c *TimeAxes) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = c.order[:0]
}

// Parameters caches the parameter table of one store.
type Parameters struct {
	mu     sync.RWMutex
	loaded bool
	table  map[int64]map[string]any
}

// NewParameters returns an empty, unloaded parameter cache.
func NewParameters() *Parameters {
	return &Parameters{table: make(map[int64]map[string]any)}
}

// Get returns the parameter set for id. loaded is false until Load has been
// called since the last invalidation.
func (p *Parameters) Get(id int64) (params map[string]any, found, loaded bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return nil, false, false
	}
	params, found = p.table[id]
	return params, found, true
}

// Load replaces the cached table.
func (p *Parameters) Load(table map[int64]map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = table
	p.loaded = true
}

// Invalidate forces the next Get to report an unloaded cache.
func (p *Parameters) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = make(map[int64]map[string]any)
	p.loaded = false
}

// Snapshot returns a deep copy of the cached table.
func (p *Parameters) Snapshot() map[int64]map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := make(map[int64]map[string]any, len(p.table))
	for id, params := range p.table {
		snap[id] = maps.Clone(params)
	}
	return snap
}
