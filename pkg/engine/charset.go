package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// decoder turns bytes at or above 0x80 into runes. Bytes below 0x80 are
// always ASCII and go straight to the parser.
type decoder interface {
	Decode(b byte) (rune, bool)
	Reset()
}

// newDecoder resolves a charset name. UTF-8 uses the incremental decoder,
// any other ASCII compatible single byte charset known to the IANA index is
// turned into a lookup table.
func newDecoder(charset string) (decoder, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return NewUTF8Decoder(), nil
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", charset)
	}

	return newTableDecoder(charset, enc)
}

// tableDecoder maps the upper half of a single byte charset
type tableDecoder struct {
	table [128]rune
}

func newTableDecoder(name string, enc encoding.Encoding) (*tableDecoder, error) {
	probe, err := enc.NewDecoder().Bytes([]byte("A\n\x1b"))
	if err != nil || string(probe) != "A\n\x1b" {
		return nil, fmt.Errorf("charset %q is not ASCII compatible", name)
	}

	td := &tableDecoder{}
	for i := range td.table {
		out, err := enc.NewDecoder().Bytes([]byte{byte(0x80 + i)})
		r, size := utf8.DecodeRune(out)
		if err != nil || size == 0 || len(out) != size {
			r = utf8.RuneError
		}
		td.table[i] = r
	}
	return td, nil
}

// Decode maps b through the table
func (d *tableDecoder) Decode(b byte) (rune, bool) {
	if b < 0x80 {
		return rune(b), true
	}
	return d.table[b-0x80], true
}

// Reset is a no-op, single byte charsets carry no state
func (d *tableDecoder) Reset() {}

// UTF8Decoder handles UTF-8 character decoding one byte at a time so that
// sequences split across Feed calls are reassembled
type UTF8Decoder struct {
	bytes    []byte
	expected int
}

// NewUTF8Decoder creates a new UTF-8 decoder
func NewUTF8Decoder() *UTF8Decoder {
	return &UTF8Decoder{
		bytes: make([]byte, 0, 4),
	}
}

// Decode processes a byte and returns a rune once a sequence is complete
func (d *UTF8Decoder) Decode(b byte) (rune, bool) {
	if d.expected > 0 {
		if b >= 0x80 && b < 0xC0 {
			d.bytes = append(d.bytes, b)
			d.expected--
			if d.expected > 0 {
				return 0, false
			}

			r, size := utf8.DecodeRune(d.bytes)
			d.Reset()
			if size == 0 {
				return utf8.RuneError, true
			}
			return r, true
		}

		// Not a continuation byte: abandon the pending sequence
		d.Reset()
		if b < 0x80 {
			return rune(b), true
		}
	}

	switch {
	case b < 0x80:
		return rune(b), true
	case b < 0xC0: // orphaned continuation byte
		return utf8.RuneError, true
	case b < 0xE0:
		d.start(b, 1)
	case b < 0xF0:
		d.start(b, 2)
	case b < 0xF8:
		d.start(b, 3)
	default:
		return utf8.RuneError, true
	}
	return 0, false
}

func (d *UTF8Decoder) start(b byte, expected int) {
	d.bytes = append(d.bytes[:0], b)
	d.expected = expected
}

// Reset resets the decoder state
func (d *UTF8Decoder) Reset() {
	d.bytes = d.bytes[:0]
	d.expected = 0
}
