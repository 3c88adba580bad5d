package ircmsg

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	// MaxBodyLength is the RFC 1459 limit for a line including CRLF.
	MaxBodyLength = 512
	// MaxTagsLength is the IRCv3 allowance for the tags section, including
	// the leading '@' and trailing space.
	MaxTagsLength = 8191
	// DefaultMaxLineLength bounds one inbound line without its delimiter.
	DefaultMaxLineLength = MaxBodyLength + MaxTagsLength
)

// Line is one framed line, stripped of its delimiter.
type Line struct {
	Text      string
	Truncated bool
}

// Framer splits a byte stream into lines delimited by CRLF or bare LF.
// Partial lines are buffered across reads. A Framer belongs to a single
// transport; create a new one per connection attempt.
type Framer struct {
	r        *bufio.Reader
	max      int
	fallback *encoding.Decoder
	buf      []byte
	overflow bool
}

// FramerOption configures a Framer.
type FramerOption func(*Framer)

// WithMaxLineLength overrides DefaultMaxLineLength.
func WithMaxLineLength(n int) FramerOption {
	return func(f *Framer) {
		if n > 0 {
			f.max = n
		}
	}
}

// WithFallbackEncoding sets the charset used to decode lines that are not
// valid UTF-8. Passing nil keeps the bytes as they are.
func WithFallbackEncoding(enc encoding.Encoding) FramerOption {
	return func(f *Framer) {
		if enc == nil {
			f.fallback = nil
			return
		}
		f.fallback = enc.NewDecoder()
	}
}

// NewFramer wraps r. Lines that are not valid UTF-8 are decoded as
// ISO-8859-1 unless configured otherwise.
func NewFramer(r io.Reader, opts ...FramerOption) *Framer {
	f := &Framer{
		max:      DefaultMaxLineLength,
		fallback: charmap.ISO8859_1.NewDecoder(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.r = bufio.NewReaderSize(r, f.max+2)
	return f
}

// Next blocks until a complete line is available. A line longer than the
// configured maximum is cut to the maximum, the remainder up to the delimiter
// is discarded and the line is flagged Truncated. When the underlying reader
// fails, the partial line read so far is kept for the next call, so a read
// deadline does not lose data.
func (f *Framer) Next() (Line, error) {
	for {
		chunk, err := f.r.ReadSlice('\n')
		if !f.overflow {
			f.buf = append(f.buf, chunk...)
			if len(f.buf) > f.max+2 {
				f.buf = f.buf[:runeCut(f.buf, f.max)]
				f.overflow = true
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return Line{}, err
	}

	raw, truncated := f.buf, f.overflow
	if !truncated {
		raw = bytes.TrimSuffix(raw, []byte{'\n'})
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if len(raw) > f.max {
			raw = raw[:runeCut(raw, f.max)]
			truncated = true
		}
	}

	line := Line{Text: f.decode(raw), Truncated: truncated}
	f.buf = f.buf[:0]
	f.overflow = false
	return line, nil
}

func (f *Framer) decode(raw []byte) string {
	if utf8.Valid(raw) || f.fallback == nil {
		return string(raw)
	}
	decoded, err := f.fallback.Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// runeCut moves a cut at n back to the start of a UTF-8 sequence that
// straddles it, so the kept part of a valid line stays valid.
func runeCut(b []byte, n int) int {
	for start := n - 1; start >= 0 && start > n-utf8.UTFMax; start-- {
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if _, size := utf8.DecodeRune(b[start:]); size > 1 && start+size > n {
			return start
		}
		return n
	}
	return n
}
