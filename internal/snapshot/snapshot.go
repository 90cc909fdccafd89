// Package snapshot tracks per-file version tokens and supplies file content
// to the analysis session.
//
// Mutable project files are re-read on every request for their content and
// re-stat'ed to detect changes; files matching an immutable pattern (by
// default anything under node_modules) are read once and cached for the
// lifetime of the store.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/xxh3"
)

// ErrModificationTimeUnavailable is returned when the filesystem does not
// report a modification time for a path.
var ErrModificationTimeUnavailable = errors.New("failed to get last modified time")

// DefaultImmutablePatterns are the globs treated as never changing.
var DefaultImmutablePatterns = []string{"**/node_modules/**"}

// FS is the filesystem the store reads from.
type FS interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS reads from the local disk.
type OSFS struct{}

func (OSFS) ReadFile(path string) ([]byte, error)  { return os.ReadFile(path) }
func (OSFS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

// Snapshot is immutable file content plus its xxh3 hash.
type Snapshot struct {
	text []byte
	hash uint64
}

// New wraps text in a Snapshot. The caller must not modify text afterwards.
func New(text []byte) *Snapshot {
	return &Snapshot{text: text, hash: xxh3.Hash(text)}
}

// Text returns the content. It must not be modified.
func (s *Snapshot) Text() []byte { return s.text }

// Hash returns the xxh3 hash of the content.
func (s *Snapshot) Hash() uint64 { return s.hash }

// Len returns the content length in bytes.
func (s *Snapshot) Len() int { return len(s.text) }

type fileVersion struct {
	version      int
	lastModified time.Time
}

// Store owns the version records of every observed file. It is not safe for
// concurrent use; the service drives it from a single request loop.
type Store struct {
	fs        FS
	immutable []string

	versions map[string]*fileVersion
	tracked  []string
	isRoot   map[string]bool
	cache    map[string]*Snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithFS replaces the filesystem, mainly for tests.
func WithFS(fsys FS) Option {
	return func(s *Store) { s.fs = fsys }
}

// WithImmutablePatterns replaces the immutable globs.
func WithImmutablePatterns(patterns ...string) Option {
	return func(s *Store) { s.immutable = append([]string(nil), patterns...) }
}

// NewStore creates an empty store reading from disk.
func NewStore(opts ...Option) *Store {
	s := &Store{
		fs:        OSFS{},
		immutable: DefaultImmutablePatterns,
		versions:  make(map[string]*fileVersion),
		isRoot:    make(map[string]bool),
		cache:     make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version returns the opaque version token for path; unseen paths report "0".
func (s *Store) Version(path string) string {
	if v, ok := s.versions[path]; ok {
		return strconv.Itoa(v.version)
	}
	return "0"
}

// Snapshot returns the current content of path, or nil when the file cannot
// be read (which also forgets its version record). Reading a mutable file
// refreshes its version: a modification time newer than the recorded one
// bumps the version.
func (s *Store) Snapshot(path string) (*Snapshot, error) {
	if snap, ok := s.cache[path]; ok {
		return snap, nil
	}

	text, err := s.fs.ReadFile(path)
	if err != nil {
		delete(s.versions, path)
		return nil, nil
	}
	snap := New(text)
	if s.IsImmutable(path) {
		s.cache[path] = snap
	}

	modTime, err := s.ModTime(path)
	if err != nil {
		return nil, err
	}
	v, ok := s.versions[path]
	if !ok {
		v = &fileVersion{lastModified: modTime}
		s.versions[path] = v
	}
	if modTime.After(v.lastModified) {
		v.lastModified = modTime
		v.version++
	}
	return snap, nil
}

// MarkAnalyzed registers path as requested. A new path is tracked at
// version 0; a known path has its version bumped so the session treats it as
// changed for this pass. It returns the modification time observed now,
// which the caller hands back to Settle once the pass succeeds.
func (s *Store) MarkAnalyzed(path string) (time.Time, error) {
	modTime, err := s.ModTime(path)
	if err != nil {
		return time.Time{}, err
	}
	if v, ok := s.versions[path]; ok {
		v.version++
	} else {
		s.versions[path] = &fileVersion{lastModified: modTime}
	}
	if !s.isRoot[path] {
		s.isRoot[path] = true
		s.tracked = append(s.tracked, path)
	}
	return modTime, nil
}

// Settle records modTime as the last observed modification time of path.
func (s *Store) Settle(path string, modTime time.Time) {
	if v, ok := s.versions[path]; ok {
		v.lastModified = modTime
	}
}

// ModTime stats path for its modification time.
func (s *Store) ModTime(path string) (time.Time, error) {
	info, err := s.fs.Stat(path)
	if err != nil || info.ModTime().IsZero() {
		return time.Time{}, fmt.Errorf("%w for: '%s'", ErrModificationTimeUnavailable, path)
	}
	return info.ModTime(), nil
}

// Tracked returns the requested files in registration order.
func (s *Store) Tracked() []string {
	return append([]string(nil), s.tracked...)
}

// IsImmutable reports whether path matches an immutable pattern.
func (s *Store) IsImmutable(path string) bool {
	rel := strings.TrimPrefix(filepath.ToSlash(path), filepath.ToSlash(filepath.VolumeName(path)))
	rel = strings.TrimPrefix(rel, "/")
	for _, pattern := range s.immutable {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
