// Package artifact manages rendered files on local disk.
//
// The result cache only holds locations. This package owns the files behind
// them: a location retired by the cache is deleted once no response is still
// reading it.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hszk-dev/typereel/internal/domain/model"
)

// ErrNotFound is returned when a location has no file behind it.
var ErrNotFound = errors.New("artifact not found")

type fileState struct {
	refs    int
	retired bool
}

// Store keeps artifacts under a root directory as <key><ext>.
type Store struct {
	root string

	mu    sync.Mutex
	files map[string]*fileState
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{
		root:  root,
		files: make(map[string]*fileState),
	}, nil
}

// Root returns the directory artifacts are written under.
func (s *Store) Root() string {
	return s.root
}

// Path returns the location of the artifact for (key, kind).
func (s *Store) Path(key model.CacheKey, kind model.Kind) string {
	return filepath.Join(s.root, key.String()+kind.Ext())
}

// Write stores data as the artifact for (key, kind) and returns its location.
// The file is written to a temporary name and renamed into place so readers
// never observe a partial artifact.
func (s *Store) Write(key model.CacheKey, kind model.Kind, data []byte) (string, error) {
	return s.WriteFrom(key, kind, bytes.NewReader(data))
}

// WriteFrom is Write for streamed content.
func (s *Store) WriteFrom(key model.CacheKey, kind model.Kind, r io.Reader) (string, error) {
	dst := s.Path(key, kind)

	tmp, err := os.CreateTemp(s.root, key.String()+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	// A fresh write supersedes a pending retirement of the same location.
	if st, ok := s.files[dst]; ok {
		st.retired = false
	}

	return dst, nil
}

// Revive returns the location for (key, kind) if its file is still on disk,
// cancelling any pending retirement.
func (s *Store) Revive(key model.CacheKey, kind model.Kind) (string, bool) {
	dst := s.Path(key, kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(dst)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	if st, ok := s.files[dst]; ok {
		st.retired = false
	}
	return dst, true
}

// Open returns a read handle on location. The file is kept on disk at least
// until the handle is closed.
func (s *Store) Open(location string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	st, ok := s.files[location]
	if !ok {
		st = &fileState{}
		s.files[location] = st
	}
	st.refs++

	return &Handle{File: f, info: info, location: location, store: s}, nil
}

// Retire deletes location now if nothing is reading it, otherwise when the
// last open handle is closed.
func (s *Store) Retire(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.files[location]
	if ok && st.refs > 0 {
		st.retired = true
		return
	}
	delete(s.files, location)
	s.remove(location)
}

// Refs returns the number of open handles on location.
func (s *Store) Refs(location string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.files[location]; ok {
		return st.refs
	}
	return 0
}

// Purge removes every file under the root. Used at startup since artifacts do
// not survive restarts.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read artifact root: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = make(map[string]*fileState)

	return errors.Join(errs...)
}

// WorkDir creates a scratch directory for one job. The caller removes it with
// RemoveWorkDir when the job finishes.
func (s *Store) WorkDir(jobID string) (string, error) {
	dir := filepath.Join(s.root, "jobs", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	return dir, nil
}

// RemoveWorkDir deletes a job scratch directory. Failures are logged only.
func (s *Store) RemoveWorkDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove job work directory",
			"dir", dir,
			"error", err,
		)
	}
}

func (s *Store) release(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.files[location]
	if !ok {
		return
	}
	st.refs--
	if st.refs > 0 {
		return
	}
	delete(s.files, location)
	if st.retired {
		s.remove(location)
	}
}

func (s *Store) remove(location string) {
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove artifact",
			"location", location,
			"error", err,
		)
	}
}

// Handle is an open artifact. Close releases the store's reference.
type Handle struct {
	*os.File
	info     os.FileInfo
	location string
	store    *Store
	once     sync.Once
}

// Location returns the path the handle was opened from.
func (h *Handle) Location() string {
	return h.location
}

// Info returns the file info captured when the handle was opened.
func (h *Handle) Info() os.FileInfo {
	return h.info
}

// Close closes the file and releases the reference. Safe to call twice.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.File.Close()
		h.store.release(h.location)
	})
	return err
}
