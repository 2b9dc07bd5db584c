package kv

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory [Store]. Data is lost on restart; intended for
// tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
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
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[string(k)] = cp
	m.mu.Unlock()
	return nil
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

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p, perr := listPrefix(prefix)

	// Snapshot matching entries under the read lock, then yield outside it.
	var keys []string
	if perr == nil {
		m.mu.RLock()
		for k := range m.data {
			if len(p) == 0 || strings.HasPrefix(k, string(p)) {
				keys = append(keys, k)
			}
		}
		m.mu.RUnlock()
		sort.Strings(keys)
	}

	return func(yield func(Entry, error) bool) {
		if perr != nil {
			yield(Entry{}, perr)
			return
		}
		for _, k := range keys {
			m.mu.RLock()
			v, ok := m.data[k]
			var cp []byte
			if ok {
				cp = make([]byte, len(v))
				copy(cp, v)
			}
			m.mu.RUnlock()
			if !ok {
				continue // deleted between snapshot and yield
			}
			if !yield(Entry{Key: decode([]byte(k)), Value: cp}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
