package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend persists the snapshot document. Replace must be atomic from the
// point of view of a concurrent Load.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Replace(ctx context.Context, snap *Snapshot) error
	Close() error
}

// Backend names accepted by Open
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Open creates the backend named kind with its files under dataDir
func Open(kind, dataDir string) (Backend, error) {
	if kind != KindMemory {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	switch kind {
	case KindFile:
		return NewFileBackend(filepath.Join(dataDir, "db.json")), nil
	case KindSQLite:
		return NewSQLiteBackend(filepath.Join(dataDir, "fieldmap.db"))
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// MemoryBackend keeps the snapshot in process memory
type MemoryBackend struct {
	mu   sync.RWMutex
	snap *Snapshot
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snap: NewSnapshot()}
}

// Load returns a copy of the current snapshot
func (m *MemoryBackend) Load(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// Replace swaps in a copy of snap
func (m *MemoryBackend) Replace(_ context.Context, snap *Snapshot) error {
	c, err := snap.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = c
	return nil
}

// Close is a no-op
func (m *MemoryBackend) Close() error {
	return nil
}
