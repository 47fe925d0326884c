// Package storage defines the chunk store contract shared by the filesystem
// and object-storage drivers. Stored objects are opaque ciphertext addressed
// by a driver-generated key and are immutable once committed.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Kind names a driver. It is chosen once, at configuration time.
type Kind string

const (
	KindFilesystem Kind = "fs"
	KindS3         Kind = "s3"
	KindMinIO      Kind = "minio"
)

// Sink receives the bytes of one new object. Exactly one of Commit or Abort
// must be called; Abort removes anything already written.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// Backend is the capability set every driver provides.
type Backend interface {
	Kind() Kind
	// NewKey generates a fresh, unused object key.
	NewKey() string
	Create(ctx context.Context, key string) (Sink, error)
	// OpenRange returns a reader over bytes [offset, offset+length).
	// Reading past the stored object yields fewer bytes, not an error.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// Size returns common.ErrorNotFound for a missing key.
	Size(ctx context.Context, key string) (int64, error)
}

// WithSink creates key, hands the sink to fn and commits when fn succeeds.
// On error or panic the sink is aborted so no partial object remains.
//
// Typical use:
//
//	err := storage.WithSink(ctx, b, key, func(w io.Writer) error {
//	    _, err := io.Copy(w, src)
//	    return err
//	})
func WithSink(ctx context.Context, b Backend, key string, fn func(w io.Writer) error) (err error) {
	sink, err := b.Create(ctx, key)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sink.Abort()
			panic(p)
		}
		if err != nil {
			_ = sink.Abort()
			return
		}
		if err = sink.Commit(); err != nil {
			_ = sink.Abort()
		}
	}()

	err = fn(sink)
	return err
}

// LocatorFor records key in the Locator field matching the driver kind.
func LocatorFor(kind Kind, key string) models.Locator {
	if kind == KindFilesystem {
		return models.Locator{FilePath: key}
	}
	return models.Locator{ObjectKey: key}
}

// KeyFor extracts the key of loc for b, failing when loc was written by a
// different kind of driver.
func KeyFor(b Backend, loc models.Locator) (string, error) {
	if !loc.Valid() {
		return "", fmt.Errorf("%w: invalid locator", common.ErrCorruptContent)
	}
	if (b.Kind() == KindFilesystem) != (loc.FilePath != "") {
		return "", fmt.Errorf("%w: locator does not belong to %s backend", common.ErrCorruptContent, b.Kind())
	}
	return loc.Key(), nil
}

// Source adapts one stored object to cryptox.RangeSource.
type Source struct {
	Backend Backend
	Key     string
}

func (s Source) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return s.Backend.OpenRange(ctx, s.Key, offset, length)
}
