package p2p

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smash64-online/netcheck/internal/protocol"
)

func TestClientRequestLayout(t *testing.T) {
	m := NewClientRequest("smash64.online", "p2p-checker-bot")
	require.Len(t, m.Data, UsernameSize+ClientSize)
	assert.Equal(t, uint16(UsernameSize+ClientSize+1), m.Size)
	assert.Equal(t, "smash64.online", string(m.Data[:14]))
	assert.Zero(t, m.Data[14])
	assert.Equal(t, "p2p-checker-bot", string(m.Data[UsernameSize:UsernameSize+15]))

	m.ID = 7
	raw, err := Codec.Encode(m)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 161, byte(ClientRequest)}, raw[:3])
	assert.Len(t, raw, 3+UsernameSize+ClientSize)
}

func TestChatLayout(t *testing.T) {
	m := NewChat("ggs", DefaultChatFrame)
	assert.Equal(t, PlayerChat, TypeOf(m))
	assert.Equal(t, []byte{5, 0, 0, 0, 'g', 'g', 's', 0}, m.Data)

	m.ID = 3
	raw, err := Codec.Encode(m)
	require.NoError(t, err)

	got, err := Codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), got.ID)
	assert.Equal(t, m.Data, got.Data)
}

func TestEmptyVariants(t *testing.T) {
	for _, m := range []*protocol.Message{NewClientAccept(), NewClientExit()} {
		assert.Empty(t, m.Data)
		assert.Equal(t, uint16(1), m.Size)
	}
}

func TestNarrowHeaderOverflow(t *testing.T) {
	m := NewChat("x", 0)
	m.ID = 256
	_, err := Codec.Encode(m)
	assert.True(t, errors.Is(err, protocol.ErrFieldOverflow))

	big := protocol.NewMessage(uint8(GameData), make([]byte, 300))
	_, err = Codec.Encode(big)
	assert.True(t, errors.Is(err, protocol.ErrFieldOverflow))
}

func TestDecodeUnknownTag(t *testing.T) {
	m, err := Codec.Decode([]byte{0, 1, 42})
	require.NoError(t, err)
	assert.Equal(t, Unknown, TypeOf(m))
}
