package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/reqdeck/internal/config"
)

// memoryStore keeps everything in process memory. It backs tests and
// throwaway sessions.
type memoryStore struct {
	mu        sync.RWMutex
	cfg       config.StorageConfig
	slots     map[string][]byte
	snapshots []*Snapshot
}

func newMemoryStore(cfg *config.StorageConfig) *memoryStore {
	return &memoryStore{cfg: *cfg, slots: make(map[string][]byte)}
}

func (m *memoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.slots[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, value...), nil
}

func (m *memoryStore) Put(key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("slot key cannot be empty")
	}
	m.mu.Lock()
	m.slots[key] = append([]byte{}, value...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.slots, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.slots))
	for k := range m.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) RecordSnapshot(snap *Snapshot) (*Snapshot, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if strings.TrimSpace(snap.ID) == "" {
		snap.ID = fmt.Sprintf("SNAP-%d", time.Now().UnixNano())
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	snap.Size = int64(len(snap.Data))

	stored := *snap
	stored.Data = append([]byte(nil), snap.Data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, &stored)
	sort.SliceStable(m.snapshots, func(i, j int) bool {
		return m.snapshots[i].Timestamp.Before(m.snapshots[j].Timestamp)
	})
	if m.cfg.Retention > 0 {
		cutoff := time.Now().Add(-m.cfg.Retention)
		kept := m.snapshots[:0]
		for _, s := range m.snapshots {
			if !s.Timestamp.Before(cutoff) {
				kept = append(kept, s)
			}
		}
		m.snapshots = kept
	}
	if limit := m.cfg.MaxSnapshots; limit > 0 && len(m.snapshots) > limit {
		m.snapshots = append([]*Snapshot(nil), m.snapshots[len(m.snapshots)-limit:]...)
	}
	return snap, nil
}

func (m *memoryStore) ListSnapshots(opts ListOptions) ([]*Snapshot, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := len(m.snapshots)
	result := make([]*Snapshot, 0, total)
	for i := total - 1; i >= 0; i-- {
		s := *m.snapshots[i]
		s.Data = nil
		result = append(result, &s)
	}
	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(result) {
			return []*Snapshot{}, total, nil
		}
		end := offset + opts.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[offset:end]
	}
	return result, total, nil
}

func (m *memoryStore) GetSnapshot(id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.snapshots {
		if s.ID == id {
			cp := *s
			cp.Data = append([]byte(nil), s.Data...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) Close() error {
	return nil
}
