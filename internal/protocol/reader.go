package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Reader decodes primitive fields from a byte slice. It never reads past
// the end of the slice; short input yields ErrShortBuffer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadBool reads a single 0/1 byte.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadStringZ reads a null-terminated string. A missing terminator
// consumes the rest of the input.
func (r *Reader) ReadStringZ() (string, error) {
	if r.Remaining() == 0 {
		return "", ErrShortBuffer
	}
	rest := r.data[r.pos:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		r.pos = len(r.data)
		return string(rest), nil
	}
	r.pos += end + 1
	return string(rest[:end]), nil
}

// ReadFixedString reads an n-byte NUL padded string.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// ParseUint decodes a width-byte little-endian integer from the start of data.
func ParseUint(data []byte, width int) (uint64, error) {
	if len(data) < width {
		return 0, ErrShortBuffer
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(data[i]) << (8 * uint(i))
	}
	return v, nil
}

// SplitFields splits a NUL-delimited payload and drops empty fields.
func SplitFields(data []byte) []string {
	parts := strings.Split(string(data), "\x00")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
