// Package cache provides the TTL store behind @cache, with an optional
// Redis tier for sharing entries between processes.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process TTL cache. The zero value is not usable; call New.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New creates an empty cache.
func New() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// Get returns the live value for key, if any.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expiresAt) {
		m.mu.Lock()
		if ok {
			delete(m.entries, key)
		}
		m.misses++
		m.mu.Unlock()
		return nil, false
	}
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Delete removes a key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear drops every entry and returns how many were removed.
func (m *Memory) Clear() int {
	m.mu.Lock()
	n := len(m.entries)
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return n
}

// Prune removes expired entries and returns how many were dropped.
func (m *Memory) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			dropped++
		}
	}
	return dropped
}

// Stats reports entry count and hit/miss totals.
func (m *Memory) Stats() (entries int, hits, misses uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), m.hits, m.misses
}
