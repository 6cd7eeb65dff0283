package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore holds the raw bytes of uploaded files.
type BlobStore interface {
	// Write stores r under a fresh random name ending in ext and returns
	// the stored path and the number of bytes written. On error nothing
	// is left behind.
	Write(ctx context.Context, ext string, r io.Reader) (path string, size int64, err error)

	// Open returns the stored bytes for parsing.
	Open(path string) (io.ReadSeekCloser, error)

	// Delete removes path. Deleting a missing blob is not an error.
	Delete(path string) error
}

// LocalBlobStore keeps uploads in a single directory on the local disk.
type LocalBlobStore struct {
	dir string
}

// NewLocalBlobStore creates dir if needed.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

// Dir returns the managed upload directory.
func (s *LocalBlobStore) Dir() string { return s.dir }

func (s *LocalBlobStore) Write(ctx context.Context, ext string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, n, nil
}

func (s *LocalBlobStore) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}

func (s *LocalBlobStore) Delete(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
