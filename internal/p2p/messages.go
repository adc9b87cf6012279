// Package p2p implements the direct peer-to-peer variant of the Kaillera
// protocol used when two players connect without a lobby server.
package p2p

import (
	"fmt"

	"github.com/smash64-online/netcheck/internal/protocol"
)

// MessageType is the type tag of a peer-to-peer message.
type MessageType uint8

const (
	ClientRequest MessageType = 1
	ClientAccept  MessageType = 2
	ClientReject  MessageType = 3
	Ping          MessageType = 4
	Pong          MessageType = 5
	SyncRequest   MessageType = 6
	SyncResponse  MessageType = 7
	SyncConfirm   MessageType = 8
	GameLoad      MessageType = 9
	GameReady     MessageType = 10
	GameStart     MessageType = 11
	GameData      MessageType = 12
	GameDrop      MessageType = 13
	PlayerChat    MessageType = 14
	ClientExit    MessageType = 15
	Unknown       MessageType = 100
)

var messageTypeStrings = map[MessageType]string{
	ClientRequest: "CLIENT_REQUEST",
	ClientAccept:  "CLIENT_ACCEPT",
	ClientReject:  "CLIENT_REJECT",
	Ping:          "PING",
	Pong:          "PONG",
	SyncRequest:   "SYNC_REQUEST",
	SyncResponse:  "SYNC_RESPONSE",
	SyncConfirm:   "SYNC_CONFIRM",
	GameLoad:      "GAME_LOAD",
	GameReady:     "GAME_READY",
	GameStart:     "GAME_START",
	GameData:      "GAME_DATA",
	GameDrop:      "GAME_DROP",
	PlayerChat:    "PLAYER_CHAT",
	ClientExit:    "CLIENT_EXIT",
	Unknown:       "UNKNOWN",
}

func (t MessageType) String() string {
	if s, ok := messageTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Known reports whether t is a named tag.
func (t MessageType) Known() bool {
	_, ok := messageTypeStrings[t]
	return ok
}

// TypeOf returns the peer-to-peer type of m.
func TypeOf(m *protocol.Message) MessageType {
	return MessageType(m.Type)
}

// Field widths of a client request.
const (
	UsernameSize = 32
	ClientSize   = 128
)

// Codec frames peer-to-peer messages as [id:1][size:1][type:1][data:size-1].
var Codec protocol.Codec = protocol.HeaderCodec{
	IDWidth:   1,
	SizeWidth: 1,
	Normalize: func(tag uint8) uint8 {
		if MessageType(tag).Known() {
			return tag
		}
		return uint8(Unknown)
	},
}

// NewBuffer creates a peer-to-peer buffer.
func NewBuffer(manage bool) *protocol.Buffer {
	return protocol.NewBuffer(Codec, manage)
}

// NewClientRequest asks a peer to accept a connection.
// Format: [username:32][client:128], NUL padded
func NewClientRequest(username, client string) *protocol.Message {
	data := protocol.NewPacketBuilder().
		WriteFixedString(username, UsernameSize).
		WriteFixedString(client, ClientSize).
		Build()
	return protocol.NewMessage(uint8(ClientRequest), data)
}

// NewChat creates an in-game chat line.
// Format: [frame:4 LE][message:stringz]
func NewChat(message string, frame uint32) *protocol.Message {
	data := protocol.NewPacketBuilder().
		WriteUint32(frame).
		WriteStringZ(message).
		Build()
	return protocol.NewMessage(uint8(PlayerChat), data)
}

// NewClientAccept acknowledges a peer's accept.
func NewClientAccept() *protocol.Message {
	return protocol.NewMessage(uint8(ClientAccept), nil)
}

// NewClientExit announces that the client is leaving.
func NewClientExit() *protocol.Message {
	return protocol.NewMessage(uint8(ClientExit), nil)
}
