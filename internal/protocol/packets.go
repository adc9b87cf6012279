// Package protocol implements the binary primitives, message framing and
// transmission buffer shared by the Kaillera server protocol and its
// peer-to-peer variant. All integers use little-endian byte order.
package protocol

// Literal packets exchanged on the public (discovery) socket.
var (
	HelloPacket = []byte("HELLO0.83\x00")
	PingPacket  = []byte("PING\x00")
	PongPacket  = []byte("PONG\x00")
)

// HelloPrefix precedes the private session port in a hello reply.
const HelloPrefix = "HELLOD00D"

// ServerFullSentinel is what remains of a hello reply when the server
// has no free slots.
const ServerFullSentinel = "TOO"

// MaxDatagramSize is the receive buffer size for a single UDP datagram.
const MaxDatagramSize = 8192

// DefaultTxSize is the minimum number of recent messages carried in
// every encoded transmission window.
const DefaultTxSize = 5

// MaxWindow is the largest message count a 1-byte window prefix can carry.
const MaxWindow = 255
