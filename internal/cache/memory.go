// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package cache

import (
	"strings"
	"sync"
)

// memoryStore is the bounded in-process fallback tier. When full, the
// oldest-inserted entry is evicted, by insertion order rather than access
// order. Overwriting an existing key keeps its original insertion position.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	order   []string
	maxSize int
}

func newMemoryStore(maxSize int) *memoryStore {
	return &memoryStore{
		entries: make(map[string]Entry, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func (m *memoryStore) get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *memoryStore) set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		m.entries[key] = entry
		return
	}

	if len(m.entries) >= m.maxSize && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}

	m.entries[key] = entry
	m.order = append(m.order, key)
}

func (m *memoryStore) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
}

func (m *memoryStore) deleteLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// deletePrefix removes every entry whose key starts with prefix and returns
// the number removed.
func (m *memoryStore) deletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	for _, k := range matched {
		m.deleteLocked(k)
	}
	return len(matched)
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
