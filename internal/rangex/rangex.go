// Package rangex parses single-range HTTP Range headers against a known
// content length.
package rangex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Range is a resolved, inclusive byte range [Start, End] of a body of Size
// bytes. Partial is false when no Range header was supplied.
type Range struct {
	Start   int64
	End     int64
	Size    int64
	Partial bool
}

// Length returns the number of bytes covered.
func (r Range) Length() int64 {
	if r.Size == 0 {
		return 0
	}
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value.
func (r Range) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
}

// Unsatisfied formats the Content-Range value sent with a 416 response.
func Unsatisfied(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Error reports a Range header that cannot be satisfied for a body of Size
// bytes. It matches common.ErrInvalidRange.
type Error struct {
	Header string
	Size   int64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %q for %d bytes", common.ErrInvalidRange, e.Header, e.Size)
}

func (e *Error) Unwrap() error { return common.ErrInvalidRange }

// Parse resolves header against size. An empty header yields the whole body.
// Supported forms are "bytes=a-b", "bytes=a-" and "bytes=-n"; an end beyond
// the body is trimmed to the last byte. Multiple ranges, malformed values
// and starts past the end fail with *Error.
func Parse(header string, size int64) (Range, error) {
	if header == "" {
		return full(size), nil
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || spec == "" || strings.Contains(spec, ",") {
		return Range{}, &Error{Header: header, Size: size}
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return Range{}, &Error{Header: header, Size: size}
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix form: last n bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return Range{}, &Error{Header: header, Size: size}
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1, Size: size, Partial: true}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return Range{}, &Error{Header: header, Size: size}
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return Range{}, &Error{Header: header, Size: size}
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return Range{Start: start, End: end, Size: size, Partial: true}, nil
}

func full(size int64) Range {
	if size == 0 {
		return Range{Start: 0, End: -1, Size: 0}
	}
	return Range{Start: 0, End: size - 1, Size: size}
}
