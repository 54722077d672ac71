// Package lock serializes work on one key at a time, either inside one
// process or across replicas that share a Redis instance.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrKeyRequired indicates a lock was requested without a key.
var ErrKeyRequired = errors.New("lock key is required")

// Locker hands out exclusive holds on string keys. Release must be called
// exactly once for every successful Acquire.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are reference counted and
// dropped once no caller holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex returns an empty in-process locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Acquire blocks until key is free or ctx ends.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrKeyRequired
	}
	entry := m.ref(key)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			m.unref(key, entry)
		})
	}, nil
}

// Len reports how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *KeyedMutex) ref(key string) *keyedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*keyedEntry)
	}
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (m *KeyedMutex) unref(key string, entry *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}
