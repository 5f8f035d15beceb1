// Package occurrence persists the last emitted occurrence key per
// (instrument, detector), so stateful detectors can suppress re-alerting the
// same pattern instance across runs and process restarts.
//
// Reads from parallel detector evaluations are safe; writes for the same key
// are sequenced by the backend (per-key atomicity). Different keys are
// independent. A corrupt or missing record degrades to "absent" — it never
// fails a detection cycle.
package occurrence

import (
	"context"
	"sync"
)

// Store is the dedup contract used by detectors.
type Store interface {
	// Get returns the persisted occurrence key, or ok=false when absent.
	Get(ctx context.Context, instrument, detector string) (key string, ok bool, err error)

	// Set durably replaces the occurrence key for (instrument, detector).
	Set(ctx context.Context, instrument, detector, key string) error

	Close() error
}

// Memory is an in-process Store used in tests and as a fallback when no
// durable backend is configured.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, instrument, detector string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[instrument+"|"+detector]
	return k, ok, nil
}

func (m *Memory) Set(_ context.Context, instrument, detector, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[instrument+"|"+detector] = key
	return nil
}

func (m *Memory) Close() error { return nil }
