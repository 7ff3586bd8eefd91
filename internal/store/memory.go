package store

import (
	"context"
	"strconv"
	"sync"
)

// Memory is an in-process Store for tests and development.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	seq     uint64
}

type memoryEntry struct {
	value   []byte
	version Version
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), e.value...), e.version, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, expected Version, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[key].version != expected {
		return conflict(key)
	}
	m.seq++
	m.entries[key] = memoryEntry{
		value:   append([]byte(nil), value...),
		version: Version(strconv.FormatUint(m.seq, 10)),
	}
	return nil
}
