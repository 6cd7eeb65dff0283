package core

// streaming.go provides the reader chain used when parsing CSV uploads.
//
// Files arrive from spreadsheet tools with a UTF-8 BOM or with bytes that
// are not valid UTF-8 (e.g. Latin-1 exports). Both are repaired on the fly
// so the CSV parser can stream the file in constant memory:
//
//   - skipBOM drops a leading 0xEF 0xBB 0xBF
//   - StreamingUTF8Sanitizer replaces invalid bytes with '?'

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newCSVSource wraps r with BOM skipping and UTF-8 sanitization.
// The BOM must be stripped before sanitization, which would otherwise
// treat it as ordinary text.
func newCSVSource(r io.Reader) io.Reader {
	return NewStreamingUTF8Sanitizer(skipBOM(r))
}

// skipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// StreamingUTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data is
// read. Multi-byte sequences split across reads are carried over to the
// next call so they are never mistaken for invalid input.
type StreamingUTF8Sanitizer struct {
	reader  io.Reader
	pending []byte // incomplete trailing sequence from the previous read
	ready   []byte // sanitized bytes that did not fit a short caller buffer
	scratch [utf8.UTFMax]byte
	err     error
}

// NewStreamingUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader. Buffers of any size are accepted: reads
// shorter than utf8.UTFMax go through an internal scratch buffer.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.ready) > 0 {
		n := copy(p, s.ready)
		s.ready = s.ready[n:]
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}

	if len(p) < utf8.UTFMax {
		n, err := s.fill(s.scratch[:])
		s.err = err
		s.ready = s.scratch[:n]
		c := copy(p, s.ready)
		s.ready = s.ready[c:]
		if c == 0 {
			return 0, err
		}
		return c, nil
	}

	n, err := s.fill(p)
	s.err = err
	return n, err
}

// fill reads from the underlying reader into p, which must hold at least
// utf8.UTFMax bytes, and sanitizes the result in place.
func (s *StreamingUTF8Sanitizer) fill(p []byte) (int, error) {
	for {
		offset := copy(p, s.pending)
		s.pending = s.pending[:0]

		n, err := s.reader.Read(p[offset:])
		n += offset
		if n == 0 {
			return 0, err
		}

		out := s.sanitize(p[:n], err == io.EOF)
		// Everything may have been held back as pending; read again
		// rather than returning (0, nil).
		if out > 0 || err != nil {
			return out, err
		}
	}
}

// sanitize rewrites data in place and returns the number of bytes to hand
// to the caller. Unless atEOF, an incomplete sequence at the end of data
// is moved to pending.
func (s *StreamingUTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if data[read] < utf8.RuneSelf {
			data[write] = data[read]
			write++
			read++
			continue
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}
