package store

import (
	"encoding/json"
	"fmt"

	"github.com/pbaille/fieldmap/internal/domain"
)

// Snapshot is the whole persisted document: every process and every
// annotation, in insertion order.
type Snapshot struct {
	Processes   []domain.Process    `json:"processes"`
	Annotations []domain.Annotation `json:"annotations"`
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Processes:   []domain.Process{},
		Annotations: []domain.Annotation{},
	}
}

// HasProcess reports whether a process with the given id exists
func (s *Snapshot) HasProcess(id string) bool {
	_, ok := s.Process(id)
	return ok
}

// Process finds a process by id
func (s *Snapshot) Process(id string) (domain.Process, bool) {
	for _, p := range s.Processes {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Process{}, false
}

// AddProcess appends a process
func (s *Snapshot) AddProcess(p domain.Process) {
	s.Processes = append(s.Processes, p)
}

// Append adds annotations at the end of the collection
func (s *Snapshot) Append(anns ...domain.Annotation) {
	s.Annotations = append(s.Annotations, anns...)
}

// ByProcess returns the annotations of a process in insertion order
func (s *Snapshot) ByProcess(processID string) []domain.Annotation {
	return s.ByProcessAndForm(processID, nil)
}

// ByProcessAndForm is ByProcess further filtered by form id when formID is
// not nil.
func (s *Snapshot) ByProcessAndForm(processID string, formID *string) []domain.Annotation {
	out := []domain.Annotation{}
	for _, a := range s.Annotations {
		if a.Process == processID && a.FormMatches(formID) {
			out = append(out, a)
		}
	}
	return out
}

// ClearProcess removes every annotation of a process and returns how many
// were removed.
func (s *Snapshot) ClearProcess(processID string) int {
	kept := s.Annotations[:0]
	for _, a := range s.Annotations {
		if a.Process != processID {
			kept = append(kept, a)
		}
	}
	removed := len(s.Annotations) - len(kept)
	s.Annotations = kept
	return removed
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	snap := NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Processes == nil {
		snap.Processes = []domain.Process{}
	}
	if snap.Annotations == nil {
		snap.Annotations = []domain.Annotation{}
	}
	return snap, nil
}
