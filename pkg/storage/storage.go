// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the filesystem-backed resource store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	// ErrIO wraps every failure of the underlying filesystem.
	ErrIO = errors.New("storage i/o failure")

	// ErrNotExist is returned when the resource is missing.
	ErrNotExist = errors.New("resource does not exist")

	// ErrExist is returned by Create when the resource is already present
	// or a file occupies one of its parent directories.
	ErrExist = errors.New("resource already exists")

	// ErrOutsideRoot is returned for paths that escape the storage root.
	ErrOutsideRoot = errors.New("path escapes storage root")

	// ErrSymlink is returned when a path crosses a symbolic link.
	ErrSymlink = errors.New("symlink not allowed")
)

// Store is the set of filesystem operations the dispatcher relies on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether a resource is present at path.
	Exists(path string) (bool, error)

	// Create creates an empty resource, including missing parent directories.
	Create(path string) error

	// ReadAll returns the full contents of the resource.
	ReadAll(path string) ([]byte, error)

	// WriteReplace replaces the contents of the resource with data.
	WriteReplace(path string, data []byte) error

	// Remove deletes the resource.
	Remove(path string) error
}

// FS is a Store rooted at a directory on the local filesystem.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS creates a store rooted at root. The root is made absolute but not created.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root %s: %w", ErrIO, root, err)
	}
	return &FS{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute storage root.
func (s *FS) Root() string {
	return s.root
}

// EnsureRoot creates the storage root if it does not exist.
func (s *FS) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: create root: %w", ErrIO, err)
	}
	return nil
}

// Check verifies that the root is an accessible directory.
func (s *FS) Check(ctx context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: stat root: %w", ErrIO, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: root %s is not a directory", ErrIO, s.root)
	}
	return nil
}

func (s *FS) Exists(path string) (bool, error) {
	p, err := s.sandbox(path, true)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, ioError("stat", p, err)
	}
	return true, nil
}

func (s *FS) Create(path string) error {
	p, err := s.sandbox(path, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ioError("mkdir", p, err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ioError("create", p, err)
	}
	if err := f.Close(); err != nil {
		return ioError("create", p, err)
	}
	return nil
}

func (s *FS) ReadAll(path string) ([]byte, error) {
	p, err := s.sandbox(path, false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, ioError("read", p, err)
	}
	return data, nil
}

func (s *FS) WriteReplace(path string, data []byte) error {
	p, err := s.sandbox(path, false)
	if err != nil {
		return err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return ioError("stat", p, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: write %s: is a directory", ErrIO, p)
	}
	if err := writeFileAtomic(p, data, fi.Mode().Perm()); err != nil {
		return ioError("write", p, err)
	}
	return nil
}

func (s *FS) Remove(path string) error {
	p, err := s.sandbox(path, false)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return ioError("remove", p, err)
	}
	return nil
}

// sandbox checks that path stays inside the root and crosses no symlink.
// allowMissing lets the final component (and its parents) be absent.
func (s *FS) sandbox(path string, allowMissing bool) (string, error) {
	p := filepath.Clean(path)
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	cur := s.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if err != nil {
			if allowMissing && (errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)) {
				return p, nil
			}
			return "", ioError("lstat", cur, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("%w: %s", ErrSymlink, cur)
		}
	}
	return p, nil
}

// ioError classifies err, keeping ErrNotExist and ErrExist distinguishable
// from other filesystem failures.
func ioError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s %s", ErrNotExist, op, path)
	case errors.Is(err, fs.ErrExist), errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %s %s", ErrExist, op, path)
	default:
		return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
	}
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".coapfs-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmpName, perm)

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true
	return nil
}
