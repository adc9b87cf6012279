package protocol

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Buffer is an ordered, ID-deduplicated collection of messages kept
// sorted by descending ID. A managed buffer assigns IDs to the messages
// added to it; every encoded window resends at least TxSize of the most
// recent entries so a lost datagram is recovered by the next one.
type Buffer struct {
	codec    Codec
	messages []*Message
	manage   bool

	TxSize int
}

// NewBuffer creates an empty buffer for codec.
func NewBuffer(codec Codec, manage bool) *Buffer {
	return &Buffer{
		codec:    codec,
		messages: make([]*Message, 0, DefaultTxSize),
		manage:   manage,
		TxSize:   DefaultTxSize,
	}
}

// Codec returns the codec the buffer encodes with.
func (b *Buffer) Codec() Codec {
	return b.codec
}

// Managed reports whether the buffer assigns message IDs.
func (b *Buffer) Managed() bool {
	return b.manage
}

// Len returns the number of stored messages.
func (b *Buffer) Len() int {
	return len(b.messages)
}

// At returns the i-th message in descending ID order.
func (b *Buffer) At(i int) *Message {
	return b.messages[i]
}

// Messages returns the stored messages in descending ID order.
func (b *Buffer) Messages() []*Message {
	out := make([]*Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Add inserts m using the buffer's own manage setting.
func (b *Buffer) Add(m *Message) (uint16, error) {
	return b.AddWith(m, b.manage)
}

// AddWith inserts m at the front. When manage is set, m.ID becomes the
// current maximum ID plus one (0 for an empty buffer); once the maximum
// is the codec's MaxID the message is refused with ErrIDExhausted. A
// message whose ID is already present is dropped. Returns m.ID.
func (b *Buffer) AddWith(m *Message, manage bool) (uint16, error) {
	b.sort()

	if manage {
		if len(b.messages) > 0 {
			top := b.messages[0].ID
			if top >= b.codec.MaxID() {
				return top, fmt.Errorf("%w: id %d is the last one", ErrIDExhausted, top)
			}
			m.ID = top + 1
		} else {
			m.ID = 0
		}
	}

	if !b.Contains(m.ID) {
		b.messages = append([]*Message{m}, b.messages...)
	}
	return m.ID, nil
}

// Contains reports whether a message with id is stored.
func (b *Buffer) Contains(id uint16) bool {
	for _, m := range b.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Merge adds every message of other, dropping IDs already present.
func (b *Buffer) Merge(other *Buffer) {
	if other == nil {
		return
	}
	for _, m := range other.messages {
		b.AddWith(m, false)
	}
}

// Filter returns the stored messages whose type is in types.
func (b *Buffer) Filter(types ...uint8) []*Message {
	var out []*Message
	for _, m := range b.messages {
		for _, t := range types {
			if m.Type == t {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Encode produces a transmission window: a 1-byte count followed by the
// encodings of the most recent messages, newest first.
func (b *Buffer) Encode() ([]byte, error) {
	b.sort()

	size := len(b.messages)
	if b.TxSize > size {
		size = b.TxSize
	}
	if size > len(b.messages) {
		size = len(b.messages)
	}
	if size > MaxWindow {
		size = MaxWindow
	}

	var out bytes.Buffer
	out.WriteByte(byte(size))
	for _, m := range b.messages[:size] {
		data, err := b.codec.Encode(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message %d: %w", m.ID, err)
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

// DecodeBuffer parses a transmission window produced by Encode. The
// returned buffer is unmanaged and its TxSize equals the decoded count.
func DecodeBuffer(codec Codec, data []byte) (*Buffer, error) {
	count, err := ParseUint(data, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read window count: %w", err)
	}

	messages := make([]*Message, 0, count)
	offset := 1
	for i := 0; i < int(count); i++ {
		if offset > len(data) {
			return nil, fmt.Errorf("window truncated at message %d: %w", i, ErrShortBuffer)
		}
		m, err := codec.Decode(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %d of %d: %w", i+1, count, err)
		}
		messages = append(messages, m)
		offset += codec.HeaderSize() + int(m.Size)
	}

	return &Buffer{
		codec:    codec,
		messages: messages,
		TxSize:   int(count),
	}, nil
}

func (b *Buffer) sort() {
	sort.SliceStable(b.messages, func(i, j int) bool {
		return b.messages[i].ID > b.messages[j].ID
	})
}

func (b *Buffer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Messages: %d", len(b.messages))
	for _, m := range b.messages {
		fmt.Fprintf(&sb, "\n  %03d: %s", m.ID, m)
	}
	return sb.String()
}
