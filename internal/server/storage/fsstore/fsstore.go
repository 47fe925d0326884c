// Package fsstore stores objects as files under a root directory.
//
// Keys look like "2024/5/17/<uuid>". New objects are written to a ".part"
// sibling and renamed into place on commit, so readers never see partial
// content under the final name.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/filex"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/google/uuid"
)

const partSuffix = ".part"

type Store struct {
	root string
	now  func() time.Time
}

// New prepares root and returns a store rooted there.
func New(root string) (*Store, error) {
	dir, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: dir, now: time.Now}, nil
}

func (s *Store) Kind() storage.Kind { return storage.KindFilesystem }

func (s *Store) NewKey() string {
	d := s.now()
	return fmt.Sprintf("%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// path maps key into root, rejecting keys that would escape it.
func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: bad storage key %q", common.ErrorValidation, key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Store) Create(_ context.Context, key string) (storage.Sink, error) {
	final, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o770); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	part := final + partSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	return &sink{f: f, part: part, final: final}, nil
}

type sink struct {
	f         *os.File
	part      string
	final     string
	committed bool
	closed    bool
}

func (w *sink) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *sink) Commit() error {
	if w.closed {
		return errors.New("sink already finished")
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.part, w.final); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	w.committed = true
	return nil
}

// Abort removes whatever was written, including a committed file.
func (w *sink) Abort() error {
	if !w.closed {
		w.closed = true
		_ = w.f.Close()
	}
	if err := os.Remove(w.part); err != nil && !os.IsNotExist(err) {
		return err
	}
	if w.committed {
		if err := os.Remove(w.final); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

type rangeReader struct {
	io.Reader
	io.Closer
}

func (s *Store) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, common.ErrInvalidRange
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek %s: %w", key, err)
	}
	return rangeReader{Reader: io.LimitReader(f, length), Closer: f}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Size(_ context.Context, key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	return fi.Size(), nil
}
