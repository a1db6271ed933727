// Package blob stores audio attachments referenced by captures. The store
// only holds bytes; ownership of the reference lives with the capture.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is the interface for attachment blob operations.
type Store interface {
	// Save atomically writes the named blob and returns its size.
	Save(name string, r io.Reader) (int64, error)
	// Open returns a reader for the named blob.
	Open(name string) (io.ReadCloser, error)
	// Exists reports whether the named blob is present.
	Exists(name string) bool
	// Delete removes the named blob.
	Delete(name string) error
	// Path resolves the absolute on-disk path for the named blob.
	Path(name string) (string, error)
}

// FS implements Store backed by a local directory.
type FS struct {
	root string // absolute path to the attachments directory
}

// Verify *FS satisfies Store at compile time.
var _ Store = (*FS)(nil)

// NewFS creates an FS store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// safeName validates that name is a plain filename (no path separators,
// no traversal) and returns the absolute path under the root.
func (f *FS) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("blob: name is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("blob: invalid name: %s", name)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob: path escapes store root: %s", name)
	}
	return abs, nil
}

// Save atomically writes content: tmp file → fsync → rename.
func (f *FS) Save(name string, r io.Reader) (int64, error) {
	abs, err := f.safeName(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(f.root, ".inkwell-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("blob: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("blob: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("blob: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("blob: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("blob: rename: %w", err)
	}
	success = true
	return written, nil
}

// Open returns a reader for the named blob.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	abs, err := f.safeName(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", name, err)
	}
	return file, nil
}

// Exists reports whether the named blob is present.
func (f *FS) Exists(name string) bool {
	abs, err := f.safeName(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Delete removes a blob from the store.
func (f *FS) Delete(name string) error {
	abs, err := f.safeName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	return nil
}

// Path resolves the absolute on-disk path for the named blob.
func (f *FS) Path(name string) (string, error) {
	return f.safeName(name)
}
