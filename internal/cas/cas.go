// Package cas is a content-addressable blob store with named references.
package cas

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrNoRef is returned by Resolve for names that were never linked.
var ErrNoRef = errors.New("no such ref")

type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// blobPath returns the sharded file path for a hash: <dir>/<first2>/<rest>.zst
func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.dir, hash[:2], hash[2:]+".zst")
}

func (s *Store) refPath(name string) string {
	h := Hash([]byte(name))
	return filepath.Join(s.dir, "refs", h[:2], h[2:])
}

// Write stores data and returns its hash. Existing blobs are not rewritten.
func (s *Store) Write(data []byte) (string, error) {
	hash := Hash(data)

	p := s.blobPath(hash)
	if _, err := os.Stat(p); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("creating CAS directory: %w", err)
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("compressing CAS content: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing zstd writer: %w", err)
	}

	// Write to a temp file first so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("creating CAS file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing CAS file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing CAS file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing CAS file: %w", err)
	}

	return hash, nil
}

// Read retrieves a blob by hash.
func (s *Store) Read(hash string) ([]byte, error) {
	if len(hash) < 3 {
		return nil, fmt.Errorf("invalid CAS hash %q", hash)
	}
	f, err := os.Open(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading CAS file %s: %w", hash, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing CAS file %s: %w", hash, err)
	}
	return data, nil
}

// Link points name at hash, replacing any previous target.
func (s *Store) Link(name, hash string) error {
	p := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating ref directory: %w", err)
	}
	if err := os.WriteFile(p, []byte(hash+"\n"), 0644); err != nil {
		return fmt.Errorf("writing ref %s: %w", name, err)
	}
	return nil
}

// Resolve returns the hash name points at.
func (s *Store) Resolve(name string) (string, error) {
	data, err := os.ReadFile(s.refPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoRef
	}
	if err != nil {
		return "", fmt.Errorf("reading ref %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Lookup reads the blob name points at.
func (s *Store) Lookup(name string) ([]byte, error) {
	hash, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.Read(hash)
}

// Clear removes every blob and ref.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clearing CAS: %w", err)
	}
	return nil
}
