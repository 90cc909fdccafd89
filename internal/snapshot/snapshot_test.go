package snapshot

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFS adapts fstest.MapFS to absolute paths and counts reads.
type memFS struct {
	files fstest.MapFS
	reads map[string]int
}

func newMemFS() *memFS {
	return &memFS{files: fstest.MapFS{}, reads: map[string]int{}}
}

func (m *memFS) put(path, content string, mod time.Time) {
	m.files[path[1:]] = &fstest.MapFile{Data: []byte(content), ModTime: mod}
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	m.reads[path]++
	return fs.ReadFile(m.files, path[1:])
}

func (m *memFS) Stat(path string) (fs.FileInfo, error) {
	return fs.Stat(m.files, path[1:])
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestStore_UnseenVersionIsZero(t *testing.T) {
	t.Parallel()
	s := NewStore(WithFS(newMemFS()))
	assert.Equal(t, "0", s.Version("/proj/Foo.ts"))
}

func TestStore_SnapshotBumpsOnNewerModTime(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	m.put("/proj/Foo.ts", "export const a = 1;", t0)
	s := NewStore(WithFS(m))

	snap, err := s.Snapshot("/proj/Foo.ts")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "export const a = 1;", string(snap.Text()))
	assert.Equal(t, "0", s.Version("/proj/Foo.ts"))

	// Same timestamp: no bump, content is still re-read.
	_, err = s.Snapshot("/proj/Foo.ts")
	require.NoError(t, err)
	assert.Equal(t, "0", s.Version("/proj/Foo.ts"))
	assert.Equal(t, 2, m.reads["/proj/Foo.ts"])

	m.put("/proj/Foo.ts", "export const a = 2;", t0.Add(time.Second))
	snap, err = s.Snapshot("/proj/Foo.ts")
	require.NoError(t, err)
	assert.Equal(t, "export const a = 2;", string(snap.Text()))
	assert.Equal(t, "1", s.Version("/proj/Foo.ts"))
}

func TestStore_ImmutableIsCachedForever(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	path := "/proj/node_modules/ue/index.d.ts"
	m.put(path, "declare class UObject {}", t0)
	s := NewStore(WithFS(m))

	first, err := s.Snapshot(path)
	require.NoError(t, err)

	m.put(path, "changed", t0.Add(time.Hour))
	second, err := s.Snapshot(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.reads[path])
	assert.True(t, s.IsImmutable(path))
	assert.False(t, s.IsImmutable("/proj/src/Foo.ts"))
}

func TestStore_MissingFileForgetsVersion(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	m.put("/proj/Foo.ts", "x", t0)
	s := NewStore(WithFS(m))

	_, err := s.MarkAnalyzed("/proj/Foo.ts")
	require.NoError(t, err)
	_, err = s.MarkAnalyzed("/proj/Foo.ts")
	require.NoError(t, err)
	assert.Equal(t, "1", s.Version("/proj/Foo.ts"))

	delete(m.files, "proj/Foo.ts")
	snap, err := s.Snapshot("/proj/Foo.ts")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, "0", s.Version("/proj/Foo.ts"))
}

func TestStore_MarkAnalyzed(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	m.put("/proj/Foo.ts", "x", t0)
	m.put("/proj/Bar.ts", "y", t0)
	s := NewStore(WithFS(m))

	mod, err := s.MarkAnalyzed("/proj/Foo.ts")
	require.NoError(t, err)
	assert.True(t, mod.Equal(t0))
	assert.Equal(t, "0", s.Version("/proj/Foo.ts"))

	_, err = s.MarkAnalyzed("/proj/Bar.ts")
	require.NoError(t, err)
	_, err = s.MarkAnalyzed("/proj/Foo.ts")
	require.NoError(t, err)

	assert.Equal(t, "1", s.Version("/proj/Foo.ts"))
	assert.Equal(t, []string{"/proj/Foo.ts", "/proj/Bar.ts"}, s.Tracked())
}

func TestStore_SettleRecordsPassStartTime(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	m.put("/proj/Foo.ts", "x", t0)
	s := NewStore(WithFS(m))

	mod, err := s.MarkAnalyzed("/proj/Foo.ts")
	require.NoError(t, err)

	// The file changes while the pass runs; settling with the start time
	// keeps the change visible to the next snapshot.
	m.put("/proj/Foo.ts", "y", t0.Add(time.Minute))
	s.Settle("/proj/Foo.ts", mod)

	_, err = s.Snapshot("/proj/Foo.ts")
	require.NoError(t, err)
	assert.Equal(t, "1", s.Version("/proj/Foo.ts"))
}

func TestStore_ModTimeUnavailable(t *testing.T) {
	t.Parallel()
	m := newMemFS()
	m.put("/proj/Foo.ts", "x", time.Time{})
	s := NewStore(WithFS(m))

	_, err := s.MarkAnalyzed("/proj/Foo.ts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModificationTimeUnavailable))
	assert.Equal(t, "failed to get last modified time for: '/proj/Foo.ts'", err.Error())

	_, err = s.Snapshot("/proj/Foo.ts")
	assert.True(t, errors.Is(err, ErrModificationTimeUnavailable))
}

func TestSnapshot_Hash(t *testing.T) {
	t.Parallel()
	a := New([]byte("same"))
	b := New([]byte("same"))
	c := New([]byte("other"))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, 4, a.Len())
}
