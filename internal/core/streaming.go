package core

// streaming.go provides the readers that clean a CSV stream before decoding.
//
// These readers wrap io.Reader without loading the whole file into memory:
//
//   - UTF8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - SkipBOM drops a leading UTF-8 byte order mark
//   - CountingReader tracks bytes read for logging
//
// Use WrapForStreaming to apply all of them in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

const sanitizeChunk = 32 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UTF8Sanitizer wraps an io.Reader and replaces each invalid UTF-8 byte with
// '?'. A multi-byte sequence split across two reads of the underlying
// reader is held back until it is complete, so valid input passes unchanged.
type UTF8Sanitizer struct {
	r   io.Reader
	buf []byte // read buffer, prefixed with the held-back tail
	in  int    // length of the held-back tail at the start of buf
	out []byte // sanitized bytes not yet returned
	err error
}

// NewUTF8Sanitizer creates a streaming UTF-8 sanitizer.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		r:   r,
		buf: make([]byte, sanitizeChunk+utf8.UTFMax),
		out: make([]byte, 0, sanitizeChunk+utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *UTF8Sanitizer) fill() {
	n, err := s.r.Read(s.buf[s.in:])
	data := s.buf[:s.in+n]
	s.err = err
	atEOF := err != nil

	out := s.out[:0]
	i := 0
	for i < len(data) {
		c := data[i]
		if c < utf8.RuneSelf {
			out = append(out, c)
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
		} else {
			out = append(out, data[i:i+size]...)
		}
		i += size
	}

	s.in = copy(s.buf, data[i:])
	s.out = out
}

// SkipBOM returns a reader that yields r without a leading UTF-8 BOM.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// WrapForStreaming wraps a reader with byte counting, BOM skipping and
// UTF-8 sanitization.
//
// The order matters: the BOM is valid UTF-8, so it must be stripped before
// sanitizing, and counting sits closest to the source so it reports raw bytes.
func WrapForStreaming(r io.Reader) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r)
	return NewUTF8Sanitizer(SkipBOM(counter)), counter
}
