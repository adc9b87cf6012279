package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// PacketBuilder constructs message payloads field by field.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint16 writes a uint16 in little-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteBool writes a boolean as a single 0/1 byte.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	b.buf.Write(Bool(v))
	return b
}

// WriteStringZ writes a null-terminated string.
func (b *PacketBuilder) WriteStringZ(s string) *PacketBuilder {
	b.buf.Write(StringZ(s))
	return b
}

// WriteFixedString writes s padded or truncated to exactly n bytes.
func (b *PacketBuilder) WriteFixedString(s string, n int) *PacketBuilder {
	b.buf.Write(StringN(s, n))
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed payload bytes.
func (b *PacketBuilder) Build() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// Len returns the current size of the payload being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current payload for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

// ---- Primitive encoders ----

// String encodes s with trailing NULs trimmed, optionally appending a
// single terminating NUL.
func String(s string, null bool) []byte {
	s = strings.TrimRight(s, "\x00")
	if !null {
		return []byte(s)
	}
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out
}

// StringZ encodes s as a null-terminated string.
func StringZ(s string) []byte {
	return String(s, true)
}

// StringN encodes s into exactly n bytes: NUL padded when shorter,
// truncated when longer. No terminator is added.
func StringN(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, strings.TrimRight(s, "\x00"))
	return out
}

// Bool encodes v as a single byte.
func Bool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// PutUint writes the low width bytes of v into dst in little-endian
// order and returns ErrFieldOverflow when v does not fit.
func PutUint(dst []byte, v uint64, width int) error {
	if len(dst) < width {
		return ErrShortBuffer
	}
	if width < 8 && v>>(8*uint(width)) != 0 {
		return fmt.Errorf("%w: %d does not fit in %d byte(s)", ErrFieldOverflow, v, width)
	}
	for i := 0; i < width; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
	return nil
}

// Uint encodes v as a width-byte little-endian integer.
func Uint(v uint64, width int) ([]byte, error) {
	out := make([]byte, width)
	if err := PutUint(out, v, width); err != nil {
		return nil, err
	}
	return out, nil
}
