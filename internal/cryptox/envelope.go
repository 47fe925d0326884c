// Package cryptox implements the content envelope: AES-256 in counter mode
// with one random IV per stored object.
//
// Counter mode keeps the keystream at any byte offset computable from
// (key, iv, offset), so a plaintext window can be decrypted from the matching
// ciphertext window alone.
package cryptox

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// IVSize is the per-object IV length, equal to the AES block size.
const IVSize = aes.BlockSize

// RangeSource yields the raw ciphertext bytes [offset, offset+length).
type RangeSource interface {
	OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Envelope encrypts and decrypts object content with a fixed key.
// It holds no per-call state and is safe for concurrent use.
type Envelope struct {
	block cipher.Block
}

func NewEnvelope(key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: content key must be %d bytes, got %d", common.ErrorValidation, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Envelope{block: block}, nil
}

// NewIV returns a fresh random IV.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// EncryptStream returns a reader yielding the ciphertext of r.
func (e *Envelope) EncryptStream(r io.Reader, iv []byte) (io.Reader, error) {
	s, err := e.streamAt(iv, 0)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: s, R: r}, nil
}

// EncryptWriter returns a writer that encrypts everything written to it into w.
func (e *Envelope) EncryptWriter(w io.Writer, iv []byte) (io.Writer, error) {
	s, err := e.streamAt(iv, 0)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamWriter{S: s, W: w}, nil
}

// DecryptRange decrypts plaintext bytes [offset, offset+length) reading only
// the matching ciphertext window from src. The returned reader yields exactly
// length bytes or fails with common.ErrCorruptContent.
func (e *Envelope) DecryptRange(ctx context.Context, src RangeSource, iv []byte, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 || length < 0 {
		return nil, common.ErrInvalidRange
	}
	s, err := e.streamAt(iv, offset)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	rc, err := src.OpenRange(ctx, offset, length)
	if err != nil {
		return nil, err
	}

	return &rangeReader{
		src:       rc,
		stream:    s,
		remaining: length,
	}, nil
}

// DecryptBytes decrypts a whole in-memory object.
func (e *Envelope) DecryptBytes(ciphertext, iv []byte) ([]byte, error) {
	s, err := e.streamAt(iv, 0)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	s.XORKeyStream(out, ciphertext)
	return out, nil
}

// streamAt positions a CTR keystream at the given plaintext offset.
func (e *Envelope) streamAt(iv []byte, offset int64) (cipher.Stream, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrCorruptContent, IVSize, len(iv))
	}

	ctr := counterAt(iv, uint64(offset/IVSize))
	s := cipher.NewCTR(e.block, ctr)

	if skip := offset % IVSize; skip > 0 {
		var discard [IVSize]byte
		s.XORKeyStream(discard[:skip], discard[:skip])
	}
	return s, nil
}

// counterAt adds blocks to iv as a 128-bit big-endian integer, which is how
// crypto/cipher's CTR increments its counter.
func counterAt(iv []byte, blocks uint64) []byte {
	ctr := make([]byte, IVSize)
	copy(ctr, iv)

	carry := blocks
	for i := IVSize - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(ctr[i]) + (carry & 0xff)
		ctr[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	return ctr
}

type rangeReader struct {
	src       io.ReadCloser
	stream    cipher.Stream
	remaining int64
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.src.Read(p)
	if n > 0 {
		r.stream.XORKeyStream(p[:n], p[:n])
		r.remaining -= int64(n)
	}

	if errors.Is(err, io.EOF) {
		if r.remaining > 0 {
			return n, fmt.Errorf("%w: ciphertext truncated, %d bytes missing", common.ErrCorruptContent, r.remaining)
		}
		return n, io.EOF
	}
	if err != nil {
		return n, err
	}
	if r.remaining == 0 {
		return n, io.EOF
	}
	return n, nil
}

func (r *rangeReader) Close() error {
	return r.src.Close()
}
