// Package frame implements the wire format spoken between the benchmark
// client and its peer: length-prefixed strings compatible with Java's
// DataOutputStream.writeUTF, the result encoding that packs a batch of
// results into one frame, and the termination sentinel.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxPayload is the largest encoded payload a single frame can carry.
const MaxPayload = 65535

// ErrMalformed is returned when a frame payload is not valid
// modified UTF-8.
var ErrMalformed = errors.New("malformed modified UTF-8 payload")

// TooLargeError is returned when a string does not fit in one frame.
type TooLargeError struct {
	Size int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("encoded frame is %d bytes, limit is %d", e.Size, MaxPayload)
}

// WriteUTF writes s as an unsigned 16-bit big-endian length followed by
// the modified UTF-8 encoding of s, in a single Write call.
func WriteUTF(w io.Writer, s string) error {
	payload := encodeModified(s)
	if len(payload) > MaxPayload {
		return &TooLargeError{Size: len(payload)}
	}

	buf := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[2:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// ReadUTF reads one frame written by WriteUTF. A clean end of stream
// before the length prefix is reported as io.EOF.
func ReadUTF(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}

		return "", fmt.Errorf("read frame length: %w", err)
	}

	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", fmt.Errorf("read frame payload: %w", err)
	}

	return decodeModified(payload)
}

// encodeModified converts s to modified UTF-8: NUL becomes 0xC0 0x80 and
// code points above U+FFFF become a surrogate pair, three bytes each.
// Invalid UTF-8 in s is replaced with U+FFFD.
func encodeModified(s string) []byte {
	out := make([]byte, 0, len(s))

	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendThree(out, r)
		default:
			r -= 0x10000
			out = appendThree(out, 0xD800+(r>>10))
			out = appendThree(out, 0xDC00+(r&0x3FF))
		}
	}

	return out
}

func appendThree(out []byte, r rune) []byte {
	return append(out,
		0xE0|byte(r>>12),
		0x80|byte((r>>6)&0x3F),
		0x80|byte(r&0x3F),
	)
}

func decodeModified(b []byte) (string, error) {
	out := make([]byte, 0, len(b))

	for i := 0; i < len(b); {
		c := b[i]

		switch {
		case c < 0x80:
			// A raw NUL is never written but is accepted, as DataInputStream.readUTF does.
			out = append(out, c)
			i++

		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrMalformed
			}
			r := rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			out = utf8.AppendRune(out, r)
			i += 2

		case c&0xF0 == 0xE0:
			r, ok := readThree(b, i)
			if !ok {
				return "", ErrMalformed
			}
			i += 3

			if r >= 0xD800 && r < 0xDC00 {
				lo, ok := readThree(b, i)
				if !ok || lo < 0xDC00 || lo > 0xDFFF {
					return "", ErrMalformed
				}
				r = 0x10000 + (r-0xD800)<<10 + (lo - 0xDC00)
				i += 3
			}
			out = utf8.AppendRune(out, r)

		default:
			return "", ErrMalformed
		}
	}

	return string(out), nil
}

func readThree(b []byte, i int) (rune, bool) {
	if i+2 >= len(b) || b[i]&0xF0 != 0xE0 ||
		b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
		return 0, false
	}

	return rune(b[i]&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F), true
}
