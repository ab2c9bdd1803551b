// Package store holds processes and annotations in a single snapshot
// document. Every mutation reads the whole snapshot, changes it in memory and
// writes it back; a mutex serializes those cycles so concurrent callers
// cannot lose each other's updates.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/fieldmap/internal/domain"
)

// Store handles process and annotation operations
type Store struct {
	backend Backend
	mu      sync.Mutex
	newID   func() string
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithIDs overrides id generation
func WithIDs(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock overrides the timestamp source
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// New creates a Store over the given backend
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		newID:   func() string { return uuid.New().String() },
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// View runs fn against the current snapshot without taking the write lock.
func (s *Store) View(ctx context.Context, fn func(*Snapshot) error) error {
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return &domain.StorageError{Op: "read", Err: err}
	}
	return fn(snap)
}

// Update runs one read-modify-write cycle. The snapshot is written back only
// when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.backend.Load(ctx)
	if err != nil {
		return &domain.StorageError{Op: "read", Err: err}
	}
	if err := fn(snap); err != nil {
		return err
	}
	if err := s.backend.Replace(ctx, snap); err != nil {
		return &domain.StorageError{Op: "write", Err: err}
	}
	return nil
}

// Stamp assigns a fresh id and creation time to a
func (s *Store) Stamp(a domain.Annotation) domain.Annotation {
	return a.Stamp(s.newID(), s.now())
}

// CreateProcess records a newly uploaded document and returns it with its id
func (s *Store) CreateProcess(ctx context.Context, p domain.Process) (*domain.Process, error) {
	p.ID = s.newID()
	p.CreatedAt = s.now()
	err := s.Update(ctx, func(snap *Snapshot) error {
		snap.AddProcess(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProcesses returns all processes in upload order
func (s *Store) ListProcesses(ctx context.Context) ([]domain.Process, error) {
	var out []domain.Process
	err := s.View(ctx, func(snap *Snapshot) error {
		out = snap.Processes
		return nil
	})
	return out, err
}

// GetProcess retrieves a process by id
func (s *Store) GetProcess(ctx context.Context, id string) (*domain.Process, error) {
	var p domain.Process
	err := s.View(ctx, func(snap *Snapshot) error {
		var ok bool
		if p, ok = snap.Process(id); !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Append persists annotations, assigning each an id and creation time
func (s *Store) Append(ctx context.Context, anns ...domain.Annotation) ([]domain.Annotation, error) {
	saved := make([]domain.Annotation, len(anns))
	err := s.Update(ctx, func(snap *Snapshot) error {
		for i, a := range anns {
			saved[i] = s.Stamp(a)
		}
		snap.Append(saved...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ListByProcess returns the annotations of a process in insertion order
func (s *Store) ListByProcess(ctx context.Context, processID string) ([]domain.Annotation, error) {
	return s.ListByProcessAndForm(ctx, processID, nil)
}

// ListByProcessAndForm is ListByProcess optionally filtered by form id
func (s *Store) ListByProcessAndForm(ctx context.Context, processID string, formID *string) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := s.View(ctx, func(snap *Snapshot) error {
		out = snap.ByProcessAndForm(processID, formID)
		return nil
	})
	return out, err
}

// ClearByProcess removes every annotation of a process. Clearing a process
// without annotations is not an error.
func (s *Store) ClearByProcess(ctx context.Context, processID string) (int, error) {
	var removed int
	err := s.Update(ctx, func(snap *Snapshot) error {
		removed = snap.ClearProcess(processID)
		return nil
	})
	return removed, err
}
