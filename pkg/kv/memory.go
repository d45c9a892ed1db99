package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := encode(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	v, ok := m.data[string(k)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Put(_ context.Context, key Key, value []byte) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[string(k)] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PutIfAbsent(_ context.Context, key Key, value []byte) (bool, error) {
	k, err := encode(key)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[string(k)]; ok {
		return false, nil
	}
	m.data[string(k)] = bytes.Clone(value)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, string(k))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Scan(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p, err := prefixBytes(prefix)
	if err != nil {
		return func(yield func(Entry, error) bool) { yield(Entry{}, err) }
	}

	// Snapshot under the read lock so yield may call back into the store.
	m.mu.RLock()
	var entries []Entry
	for k, v := range m.data {
		if strings.HasPrefix(k, string(p)) {
			entries = append(entries, Entry{Key: decode([]byte(k)), Value: bytes.Clone(v)})
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }
