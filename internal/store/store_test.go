package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/fieldmap/internal/bbox"
	"github.com/pbaille/fieldmap/internal/domain"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := NewSQLiteBackend(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		KindMemory: NewMemoryBackend(),
		KindFile:   NewFileBackend(filepath.Join(dir, "db.json")),
		KindSQLite: sqlite,
	}
}

func annotation(process string, page int, formID *string, x1 float64) domain.Annotation {
	norm := bbox.Rect{x1, 0.1, x1 + 0.1, 0.2}
	return domain.Annotation{
		Process:   process,
		FormID:    formID,
		FieldName: fmt.Sprintf("field_%v", x1),
		BBoxNorm:  &norm,
		Page:      page,
		Scale:     1,
		Metadata:  map[string]any{},
	}
}

func strPtr(s string) *string { return &s }

func TestStore_Backends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b, WithIDs(sequentialIDs()), WithClock(func() time.Time { return fixedNow }))

			p, err := s.CreateProcess(ctx, domain.Process{OriginalName: "form.pdf", Filename: "1-form.pdf", Path: "/uploads/1-form.pdf"})
			require.NoError(t, err)
			assert.Equal(t, "id-1", p.ID)
			assert.True(t, fixedNow.Equal(p.CreatedAt))

			got, err := s.GetProcess(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "form.pdf", got.OriginalName)

			_, err = s.GetProcess(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrNotFound)

			saved, err := s.Append(ctx,
				annotation(p.ID, 1, strPtr("20"), 0.1),
				annotation("other", 1, nil, 0.2),
				annotation(p.ID, 2, nil, 0.3),
			)
			require.NoError(t, err)
			require.Len(t, saved, 3)
			for _, a := range saved {
				assert.NotEmpty(t, a.ID)
				require.NotNil(t, a.CreatedAt)
				assert.True(t, fixedNow.Equal(*a.CreatedAt))
			}

			list, err := s.ListByProcess(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, saved[0].ID, list[0].ID)
			assert.Equal(t, saved[2].ID, list[1].ID)

			byForm, err := s.ListByProcessAndForm(ctx, p.ID, strPtr("20"))
			require.NoError(t, err)
			require.Len(t, byForm, 1)
			assert.Equal(t, saved[0].ID, byForm[0].ID)

			removed, err := s.ClearByProcess(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			removed, err = s.ClearByProcess(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, removed)

			list, err = s.ListByProcess(ctx, p.ID)
			require.NoError(t, err)
			assert.Empty(t, list)

			other, err := s.ListByProcess(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestStore_ConcurrentAppendsAreNotLost(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.Append(ctx, annotation("p1", 1, nil, float64(i)/100))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			list, err := s.ListByProcess(ctx, "p1")
			require.NoError(t, err)
			assert.Len(t, list, 20)
		})
	}
}

func TestStore_UpdateErrorSkipsWrite(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())
	boom := errors.New("boom")

	err := s.Update(ctx, func(snap *Snapshot) error {
		snap.Append(annotation("p1", 1, nil, 0.1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.ListByProcess(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_StorageErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := New(NewFileBackend(path))
	_, err := s.ListProcesses(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err))
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "db.json"))
	snap, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Processes)
	assert.Empty(t, snap.Annotations)
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "db.json"))
	require.NoError(t, b.Replace(context.Background(), NewSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "db.json", entries[0].Name())
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	snap := NewSnapshot()
	snap.Append(annotation("p1", 1, nil, 0.1))
	require.NoError(t, b.Replace(ctx, snap))

	snap.Annotations[0].FieldName = "changed"
	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "field_0.1", loaded.Annotations[0].FieldName)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(KindFile, filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = Open(KindMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	_, err = Open("redis", dir)
	assert.Error(t, err)
}
