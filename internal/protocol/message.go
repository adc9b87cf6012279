package protocol

import (
	"fmt"
)

// Message is a single framed protocol message. Size counts the type tag
// byte, so Size == len(Data)+1.
type Message struct {
	ID   uint16
	Size uint16
	Type uint8
	Data []byte
}

// NewMessage creates a message whose size is derived from data.
func NewMessage(typ uint8, data []byte) *Message {
	payload := make([]byte, len(data))
	copy(payload, data)
	return &Message{
		Size: uint16(len(payload) + 1),
		Type: typ,
		Data: payload,
	}
}

// NewSizedMessage creates a message with an explicit size; data is
// right-padded with zero bytes (or truncated) to size-1.
func NewSizedMessage(typ uint8, size uint16, data []byte) *Message {
	if size == 0 {
		return NewMessage(typ, data)
	}
	payload := make([]byte, int(size)-1)
	copy(payload, data)
	return &Message{
		Size: size,
		Type: typ,
		Data: payload,
	}
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	c.Data = make([]byte, len(m.Data))
	copy(c.Data, m.Data)
	return &c
}

func (m *Message) String() string {
	return fmt.Sprintf("0x%02X (len = %d): %q", m.Type, m.Size, m.Data)
}

// Codec encodes and decodes messages for one protocol family.
type Codec interface {
	// HeaderSize is the header byte count excluding the type tag.
	HeaderSize() int
	// MaxID is the largest message ID the id field can carry.
	MaxID() uint16
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// HeaderCodec is a Codec for the layout [id][size][type][data] with
// configurable id and size field widths.
type HeaderCodec struct {
	IDWidth   int
	SizeWidth int

	// Normalize maps a decoded type tag into the family's closed set.
	Normalize func(uint8) uint8
}

// HeaderSize implements Codec.
func (c HeaderCodec) HeaderSize() int {
	return c.IDWidth + c.SizeWidth
}

// MaxID implements Codec.
func (c HeaderCodec) MaxID() uint16 {
	if c.IDWidth >= 2 {
		return 0xFFFF
	}
	return uint16(1)<<(8*c.IDWidth) - 1
}

// Encode implements Codec.
func (c HeaderCodec) Encode(m *Message) ([]byte, error) {
	header := c.HeaderSize()
	out := make([]byte, header+1+len(m.Data))
	if err := PutUint(out[:c.IDWidth], uint64(m.ID), c.IDWidth); err != nil {
		return nil, fmt.Errorf("failed to encode message id: %w", err)
	}
	if err := PutUint(out[c.IDWidth:header], uint64(m.Size), c.SizeWidth); err != nil {
		return nil, fmt.Errorf("failed to encode message size: %w", err)
	}
	out[header] = m.Type
	copy(out[header+1:], m.Data)
	return out, nil
}

// Decode implements Codec.
func (c HeaderCodec) Decode(data []byte) (*Message, error) {
	header := c.HeaderSize()
	id, err := ParseUint(data, c.IDWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message id: %w", err)
	}
	size, err := ParseUint(data[c.IDWidth:], c.SizeWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message size: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("zero-size message %d", id)
	}
	if len(data) < header+int(size) {
		return nil, fmt.Errorf("message %d needs %d bytes, have %d: %w",
			id, header+int(size), len(data), ErrShortBuffer)
	}

	typ := data[header]
	if c.Normalize != nil {
		typ = c.Normalize(typ)
	}

	payload := make([]byte, int(size)-1)
	copy(payload, data[header+1:header+int(size)])

	return &Message{
		ID:   uint16(id),
		Size: uint16(size),
		Type: typ,
		Data: payload,
	}, nil
}
