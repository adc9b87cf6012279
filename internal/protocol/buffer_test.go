package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCodec = HeaderCodec{IDWidth: 2, SizeWidth: 2}

func assertDescendingUnique(t *testing.T, b *Buffer) {
	t.Helper()
	msgs := b.Messages()
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i-1].ID, msgs[i].ID, "ids must be strictly descending")
	}
}

func TestBufferManagedIDs(t *testing.T) {
	b := NewBuffer(testCodec, true)

	for i := 0; i < 6; i++ {
		id, err := b.Add(NewMessage(7, []byte{byte(i)}))
		require.NoError(t, err)
		assert.Equal(t, uint16(i), id)
	}

	require.Equal(t, 6, b.Len())
	assertDescendingUnique(t, b)
	assert.Equal(t, uint16(5), b.At(0).ID)
	assert.Equal(t, []byte{5}, b.At(0).Data)
	assert.Equal(t, uint16(0), b.At(5).ID)
}

func TestBufferDedupKeepsFirst(t *testing.T) {
	b := NewBuffer(testCodec, false)

	first := &Message{ID: 3, Size: 2, Type: 1, Data: []byte{0xAA}}
	second := &Message{ID: 3, Size: 2, Type: 2, Data: []byte{0xBB}}

	b.Add(first)
	b.Add(second)

	require.Equal(t, 1, b.Len())
	assert.Same(t, first, b.At(0))
}

func TestBufferOrderingUnmanaged(t *testing.T) {
	b := NewBuffer(testCodec, false)
	for _, id := range []uint16{4, 9, 1, 9, 7, 0, 4} {
		b.Add(&Message{ID: id, Size: 1, Type: 1})
	}

	// Add sorts before inserting, so re-encode forces a final sort.
	_, err := b.Encode()
	require.NoError(t, err)

	assert.Equal(t, 5, b.Len())
	assertDescendingUnique(t, b)
}

func TestBufferAddWithOverride(t *testing.T) {
	b := NewBuffer(testCodec, false)
	b.Add(&Message{ID: 10, Size: 1, Type: 1})

	id, err := b.AddWith(NewMessage(1, nil), true)
	require.NoError(t, err)
	assert.Equal(t, uint16(11), id)
}

func TestBufferManagedIDsExhausted(t *testing.T) {
	tests := []struct {
		name  string
		codec HeaderCodec
		last  uint16
	}{
		{"two byte ids", testCodec, 0xFFFF},
		{"one byte ids", HeaderCodec{IDWidth: 1, SizeWidth: 1}, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.codec, true)
			b.AddWith(&Message{ID: tt.last, Size: 1, Type: 1}, false)

			_, err := b.Add(NewMessage(1, nil))
			assert.ErrorIs(t, err, ErrIDExhausted)
			assert.Equal(t, 1, b.Len(), "refused message is not queued")
		})
	}
}

func TestBufferEncodeWindowNotPadded(t *testing.T) {
	b := NewBuffer(testCodec, true)
	b.Add(NewMessage(7, []byte("a\x00")))
	b.Add(NewMessage(7, []byte("bc\x00")))
	require.Equal(t, DefaultTxSize, b.TxSize)

	raw, err := b.Encode()
	require.NoError(t, err)

	assert.Equal(t, byte(2), raw[0])
	// count + (4 header + 1 tag + 3) + (4 header + 1 tag + 2)
	assert.Len(t, raw, 1+8+7)

	// newest first
	assert.Equal(t, []byte{1, 0}, raw[1:3])
}

func TestBufferEncodeDecodeRoundTrip(t *testing.T) {
	b := NewBuffer(testCodec, true)
	for _, s := range []string{"one", "two", "three"} {
		b.Add(NewMessage(7, StringZ(s)))
	}

	raw, err := b.Encode()
	require.NoError(t, err)

	decoded, err := DecodeBuffer(testCodec, raw)
	require.NoError(t, err)

	require.Equal(t, 3, decoded.Len())
	assert.Equal(t, 3, decoded.TxSize)
	assert.False(t, decoded.Managed())
	for i, m := range b.Messages() {
		assert.Equal(t, m.ID, decoded.At(i).ID)
		assert.Equal(t, m.Size, decoded.At(i).Size)
		assert.Equal(t, m.Data, decoded.At(i).Data)
	}
}

func TestBufferMerge(t *testing.T) {
	rx := NewBuffer(testCodec, false)

	w1 := NewBuffer(testCodec, false)
	w1.Add(&Message{ID: 1, Size: 1, Type: 2})
	w1.Add(&Message{ID: 0, Size: 1, Type: 2})

	w2 := NewBuffer(testCodec, false)
	w2.Add(&Message{ID: 2, Size: 1, Type: 2})
	w2.Add(&Message{ID: 1, Size: 1, Type: 2})

	rx.Merge(w1)
	rx.Merge(w2)
	rx.Merge(nil)

	assert.Equal(t, 3, rx.Len())
	assertDescendingUnique(t, rx)
}

func TestDecodeBufferTruncated(t *testing.T) {
	_, err := DecodeBuffer(testCodec, nil)
	assert.ErrorIs(t, err, ErrShortBuffer)

	// claims two messages, carries one
	raw := []byte{2, 0, 0, 1, 0, 7}
	_, err = DecodeBuffer(testCodec, raw)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestBufferFilter(t *testing.T) {
	b := NewBuffer(testCodec, true)
	b.Add(NewMessage(2, nil))
	b.Add(NewMessage(4, nil))
	b.Add(NewMessage(2, nil))

	assert.Len(t, b.Filter(2), 2)
	assert.Len(t, b.Filter(4, 2), 3)
	assert.Empty(t, b.Filter(9))
}
