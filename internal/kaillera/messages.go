// Package kaillera implements the client side of the Kaillera lobby
// server protocol: message types, wire variants, and the session client
// that performs the hello handshake, join negotiation, chat, ping and
// disconnect.
package kaillera

import (
	"fmt"

	"github.com/smash64-online/netcheck/internal/protocol"
)

// MessageType is the type tag of a server-protocol message.
type MessageType uint8

const (
	ClientQuit   MessageType = 1
	ClientJoin   MessageType = 2
	ClientInfo   MessageType = 3
	ServerStatus MessageType = 4
	ServerAck    MessageType = 5
	ClientAck    MessageType = 6
	ChatGlobal   MessageType = 7
	ChatGame     MessageType = 8
	KeepAlive    MessageType = 9
	GameCreate   MessageType = 10
	GameQuit     MessageType = 11
	GameJoin     MessageType = 12
	GamePlayer   MessageType = 13
	GameStatus   MessageType = 14
	GameKick     MessageType = 15
	GameClose    MessageType = 16
	GameStart    MessageType = 17
	GameData     MessageType = 18
	GameCache    MessageType = 19
	GameDrop     MessageType = 20
	GameReady    MessageType = 21
	ServerReject MessageType = 22
	ServerNotice MessageType = 23
	Unknown      MessageType = 100
)

var messageTypeStrings = map[MessageType]string{
	ClientQuit:   "CLIENT_QUIT",
	ClientJoin:   "CLIENT_JOIN",
	ClientInfo:   "CLIENT_INFO",
	ServerStatus: "SERVER_STATUS",
	ServerAck:    "SERVER_ACK",
	ClientAck:    "CLIENT_ACK",
	ChatGlobal:   "CHAT_GLOBAL",
	ChatGame:     "CHAT_GAME",
	KeepAlive:    "KEEP_ALIVE",
	GameCreate:   "GAME_CREATE",
	GameQuit:     "GAME_QUIT",
	GameJoin:     "GAME_JOIN",
	GamePlayer:   "GAME_PLAYER",
	GameStatus:   "GAME_STATUS",
	GameKick:     "GAME_KICK",
	GameClose:    "GAME_CLOSE",
	GameStart:    "GAME_START",
	GameData:     "GAME_DATA",
	GameCache:    "GAME_CACHE",
	GameDrop:     "GAME_DROP",
	GameReady:    "GAME_READY",
	ServerReject: "SERVER_REJECT",
	ServerNotice: "SERVER_NOTICE",
	Unknown:      "UNKNOWN",
}

// String returns the wire name of the type.
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

// TypeOf returns the server-protocol type of m.
func TypeOf(m *protocol.Message) MessageType {
	return MessageType(m.Type)
}

func normalizeType(tag uint8) uint8 {
	if MessageType(tag).Known() {
		return tag
	}
	return uint8(Unknown)
}

// Codec frames server-protocol messages as
// [id:2 LE][size:2 LE][type:1][data:size-1].
var Codec protocol.Codec = protocol.HeaderCodec{
	IDWidth:   2,
	SizeWidth: 2,
	Normalize: normalizeType,
}

// NewBuffer creates a server-protocol buffer.
func NewBuffer(manage bool) *protocol.Buffer {
	return protocol.NewBuffer(Codec, manage)
}

// ConnType is the connection quality a client announces when joining.
type ConnType uint8

const (
	ConnLAN       ConnType = 1
	ConnExcellent ConnType = 2
	ConnGood      ConnType = 3
	ConnAverage   ConnType = 4
	ConnLow       ConnType = 5
	ConnBad       ConnType = 6
)

var connTypeNames = map[string]ConnType{
	"lan":       ConnLAN,
	"excellent": ConnExcellent,
	"good":      ConnGood,
	"average":   ConnAverage,
	"low":       ConnLow,
	"bad":       ConnBad,
}

// ParseConnType parses a connection type name such as "lan" or "good".
func ParseConnType(name string) (ConnType, error) {
	if c, ok := connTypeNames[name]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown connection type %q", name)
}

// ---- Message constructors ----

// NewChatGlobal creates a global chat message.
// Format: [username:stringz][message:stringz]
func NewChatGlobal(message, username string) *protocol.Message {
	data := protocol.NewPacketBuilder().
		WriteStringZ(username).
		WriteStringZ(message).
		Build()
	return protocol.NewMessage(uint8(ChatGlobal), data)
}

// NewClientInfo creates the user information message sent to join.
// Format: [username:stringz][client:stringz][conn_type:1]
func NewClientInfo(username, client string, conn ConnType) *protocol.Message {
	data := protocol.NewPacketBuilder().
		WriteStringZ(username).
		WriteStringZ(client).
		WriteUint8(uint8(conn)).
		Build()
	return protocol.NewMessage(uint8(ClientInfo), data)
}

// NewClientQuit creates a quit message.
// Format: [00 FF FF][message:stringz]
func NewClientQuit(message string) *protocol.Message {
	data := protocol.NewPacketBuilder().
		WriteBytes([]byte{0x00, 0xFF, 0xFF}).
		WriteStringZ(message).
		Build()
	return protocol.NewMessage(uint8(ClientQuit), data)
}

// NewClientAck creates a client acknowledgement.
// Format: [00][0:4][1:4][2:4][3:4]
func NewClientAck() *protocol.Message {
	b := protocol.NewPacketBuilder().WriteUint8(0)
	for i := uint32(0); i < 4; i++ {
		b.WriteUint32(i)
	}
	return protocol.NewMessage(uint8(ClientAck), b.Build())
}

// Reject holds the fields of a SERVER_REJECT payload.
type Reject struct {
	Username string
	UserID   int
	Reason   string
}

// ParseReject decodes a SERVER_REJECT payload.
// Format: [username:stringz][user_id:2 LE][reason:stringz]
func ParseReject(data []byte) (Reject, error) {
	r := protocol.NewReader(data)

	user, err := r.ReadStringZ()
	if err != nil {
		return Reject{}, fmt.Errorf("failed to parse reject username: %w", err)
	}

	id, err := r.ReadUint16()
	if err != nil {
		return Reject{}, fmt.Errorf("failed to parse reject user id: %w", err)
	}

	reason, err := r.ReadStringZ()
	if err != nil && err != protocol.ErrShortBuffer {
		return Reject{}, fmt.Errorf("failed to parse reject reason: %w", err)
	}

	return Reject{Username: user, UserID: int(id), Reason: reason}, nil
}
