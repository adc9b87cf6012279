package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smash64-online/netcheck/internal/network"
	"github.com/smash64-online/netcheck/internal/protocol"
)

// State is the negotiation state of a Client.
type State int

const (
	StateConnecting State = iota
	StateAccepted
	StateRejected
	StateGivenUp
)

var stateStrings = map[State]string{
	StateConnecting: "connecting",
	StateAccepted:   "accepted",
	StateRejected:   "rejected",
	StateGivenUp:    "given_up",
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// DefaultConnectAttempts is the number of client requests sent before
// giving up on a peer.
const DefaultConnectAttempts = 3

// DefaultChatFrame is the frame number stamped on chat lines.
const DefaultChatFrame = 5

// Options configures a Client.
type Options struct {
	Timeout         time.Duration
	Retries         int
	ConnectAttempts int
}

// Client speaks the peer-to-peer protocol over a single UDP socket.
// A Client is not safe for concurrent use.
type Client struct {
	host  string
	port  int
	opts  Options
	state State

	conn *network.UDPConn

	clientBuffer *protocol.Buffer
	serverBuffer *protocol.Buffer

	logger zerolog.Logger
}

// NewClient opens the socket to the peer at host:port. Failing to open it
// is reported as a KindConnect error.
func NewClient(ctx context.Context, host string, port int, opts Options) (*Client, error) {
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = DefaultConnectAttempts
	}

	conn, err := network.Dial(ctx, host, port, network.DialOptions{
		Timeout: opts.Timeout,
		Retries: opts.Retries,
	})
	if err != nil {
		return nil, protocol.NewError(protocol.KindConnect, err)
	}

	return &Client{
		host:         host,
		port:         port,
		opts:         opts,
		state:        StateConnecting,
		conn:         conn,
		clientBuffer: NewBuffer(true),
		serverBuffer: NewBuffer(false),
		logger: log.With().
			Str("component", "p2p").
			Str("host", host).
			Int("port", port).
			Logger(),
	}, nil
}

// State returns the current negotiation state.
func (c *Client) State() State {
	return c.state
}

// ServerBuffer returns every message received from the peer so far.
func (c *Client) ServerBuffer() *protocol.Buffer {
	return c.serverBuffer
}

// ClientBuffer returns every message sent so far.
func (c *Client) ClientBuffer() *protocol.Buffer {
	return c.clientBuffer
}

// SendMessage adds m to the outgoing buffer and sends the transmission
// window. With wait set it blocks for one reply and returns it decoded;
// otherwise it returns an empty buffer as soon as the datagram is out.
func (c *Client) SendMessage(m *protocol.Message, wait bool) (*protocol.Buffer, error) {
	if c.conn == nil {
		return nil, &protocol.Error{Kind: protocol.KindNotConnected, Reason: "client is closed"}
	}

	if _, err := c.clientBuffer.Add(m); err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, err)
	}
	window, err := c.clientBuffer.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode window: %w", err)
	}

	if !wait {
		if err := c.conn.Send(window); err != nil {
			return nil, protocol.NewError(protocol.KindConnect, err)
		}
		return NewBuffer(false), nil
	}

	raw, err := c.conn.SendAndReceive(window, false)
	if err != nil {
		if network.IsTimeout(err) {
			return nil, protocol.NewError(protocol.KindTimeout, err)
		}
		return nil, protocol.NewError(protocol.KindConnect, err)
	}

	response, err := protocol.DecodeBuffer(Codec, raw)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, err)
	}
	c.serverBuffer.Merge(response)
	return response, nil
}

// Connect requests a session with the peer. Each reply is scanned for an
// accept, which is acknowledged, or a reject, which fails with a
// KindPeerReject error. A reply that times out uses up an attempt. The
// returned buffer holds the accept, reject and chat messages seen.
func (c *Client) Connect(username, clientName string) (bool, *protocol.Buffer, error) {
	c.state = StateConnecting
	joinBuffer := NewBuffer(false)
	request := NewClientRequest(username, clientName)

	for attempt := 1; attempt <= c.opts.ConnectAttempts; attempt++ {
		response, err := c.SendMessage(request.Clone(), true)
		if err != nil {
			if protocol.IsKind(err, protocol.KindTimeout) {
				c.logger.Debug().
					Int("attempt", attempt).
					Int("max", c.opts.ConnectAttempts).
					Msg("peer did not answer request")
				continue
			}
			return false, joinBuffer, err
		}

		for _, m := range response.Messages() {
			switch TypeOf(m) {
			case ClientAccept:
				joinBuffer.Add(m)
				c.state = StateAccepted
				// the peer may not answer the acknowledgement
				if _, err := c.SendMessage(NewClientAccept(), true); err != nil && !protocol.IsKind(err, protocol.KindTimeout) {
					return true, joinBuffer, err
				}
				c.logger.Info().Str("username", username).Msg("peer accepted")
				return true, joinBuffer, nil
			case ClientReject:
				joinBuffer.Add(m)
				c.state = StateRejected
				c.logger.Info().Msg("peer rejected request")
				return false, joinBuffer, &protocol.Error{Kind: protocol.KindPeerReject, Reason: "peer rejected the request"}
			case PlayerChat:
				joinBuffer.Add(m)
			}
		}
	}

	c.state = StateGivenUp
	return false, joinBuffer, nil
}

// Chat sends a chat line stamped with frame. With wait unset the line is
// sent without expecting a reply.
func (c *Client) Chat(message string, frame uint32, wait bool) (*protocol.Buffer, error) {
	return c.SendMessage(NewChat(message, frame), wait)
}

// Disconnect sends an exit message. Peers do not reply to it.
func (c *Client) Disconnect() error {
	_, err := c.SendMessage(NewClientExit(), false)
	return err
}

// HostInfo returns the username and game announced in the first accept
// message of buf.
func HostInfo(buf *protocol.Buffer) (user, game string, ok bool) {
	for _, m := range buf.Messages() {
		if TypeOf(m) != ClientAccept {
			continue
		}
		fields := protocol.SplitFields(m.Data)
		if len(fields) < 2 {
			return "", "", false
		}
		return fields[0], fields[1], true
	}
	return "", "", false
}

// Close closes the socket and discards the session buffers.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.clientBuffer = NewBuffer(true)
	c.serverBuffer = NewBuffer(false)
	return err
}
