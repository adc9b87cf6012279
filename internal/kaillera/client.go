package kaillera

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smash64-online/netcheck/internal/network"
	"github.com/smash64-online/netcheck/internal/protocol"
)

// State is the session state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateHelloSent
	StatePrivateSocketOpen
	StateJoining
	StateJoined
	StateRejected
	StateFull
)

var stateStrings = map[State]string{
	StateDisconnected:      "disconnected",
	StateHelloSent:         "hello_sent",
	StatePrivateSocketOpen: "private_socket_open",
	StateJoining:           "joining",
	StateJoined:            "joined",
	StateRejected:          "rejected",
	StateFull:              "full",
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// DefaultMaxJoinAttempts bounds the client-ack exchange during a join.
const DefaultMaxJoinAttempts = 30

// Options configures a Client.
type Options struct {
	Timeout         time.Duration
	Retries         int
	MaxJoinAttempts int
}

func (o Options) dialOptions() network.DialOptions {
	return network.DialOptions{Timeout: o.Timeout, Retries: o.Retries}
}

// joinTypes are collected into the buffer returned by Connect.
var joinTypes = []MessageType{ClientJoin, ServerReject, ServerNotice, ServerStatus}

// Client speaks the Kaillera server protocol. The public socket carries
// hello and ping; the private socket, opened after a successful hello,
// carries the session. A Client is not safe for concurrent use.
type Client struct {
	host     string
	port     int
	userPort int
	opts     Options
	state    State

	pub  *network.UDPConn
	priv *network.UDPConn

	clientBuffer *protocol.Buffer
	serverBuffer *protocol.Buffer

	logger zerolog.Logger
}

// NewClient opens the public socket to host:port. Failing to open it is
// reported as a KindConnect error.
func NewClient(ctx context.Context, host string, port int, opts Options) (*Client, error) {
	if opts.MaxJoinAttempts <= 0 {
		opts.MaxJoinAttempts = DefaultMaxJoinAttempts
	}

	pub, err := network.Dial(ctx, host, port, opts.dialOptions())
	if err != nil {
		return nil, protocol.NewError(protocol.KindConnect, err)
	}

	return &Client{
		host:         host,
		port:         port,
		opts:         opts,
		state:        StateDisconnected,
		pub:          pub,
		clientBuffer: NewBuffer(true),
		serverBuffer: NewBuffer(false),
		logger: log.With().
			Str("component", "kaillera").
			Str("host", host).
			Int("port", port).
			Logger(),
	}, nil
}

// State returns the current session state.
func (c *Client) State() State {
	return c.state
}

// UserPort returns the private session port negotiated by Hello.
func (c *Client) UserPort() int {
	return c.userPort
}

// ServerBuffer returns every message received from the server so far.
func (c *Client) ServerBuffer() *protocol.Buffer {
	return c.serverBuffer
}

// ClientBuffer returns every message sent so far.
func (c *Client) ClientBuffer() *protocol.Buffer {
	return c.clientBuffer
}

// SendMessage adds m to the outgoing buffer, sends the transmission
// window on the private socket and returns the decoded reply window.
func (c *Client) SendMessage(m *protocol.Message) (*protocol.Buffer, error) {
	if c.priv == nil {
		return nil, &protocol.Error{Kind: protocol.KindNotConnected, Reason: "connect must be called first"}
	}

	if _, err := c.clientBuffer.Add(m); err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, err)
	}
	window, err := c.clientBuffer.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode window: %w", err)
	}

	raw, err := c.priv.SendAndReceive(window, false)
	if err != nil {
		return nil, wrapTransport(err)
	}

	response, err := protocol.DecodeBuffer(Codec, raw)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, err)
	}
	c.serverBuffer.Merge(response)

	c.logger.Trace().
		Str("sent", TypeOf(m).String()).
		Int("received", response.Len()).
		Msg("message exchanged")

	return response, nil
}

// Hello performs the public-socket handshake and opens the private
// session socket on the port the server hands out.
func (c *Client) Hello(ctx context.Context) (int, error) {
	if c.pub == nil {
		return 0, errClosed
	}
	c.state = StateHelloSent

	response, err := c.pub.SendAndReceive(protocol.HelloPacket, false)
	if err != nil {
		if !network.IsTimeout(err) {
			c.state = StateDisconnected
			return 0, wrapTransport(err)
		}

		// Some servers drop hello while still answering ping.
		if stats, pingErr := c.Ping(1); pingErr == nil && stats.Drops == 0 {
			c.state = StateDisconnected
			return 0, protocol.NewError(protocol.KindNoHello, err)
		}
		c.state = StateDisconnected
		return 0, wrapTransport(err)
	}

	reply := strings.TrimRight(string(response), "\x00")
	reply = strings.ReplaceAll(reply, protocol.HelloPrefix, "")

	if reply == protocol.ServerFullSentinel {
		c.state = StateFull
		c.logger.Info().Msg("server is full")
		return 0, &protocol.Error{Kind: protocol.KindServerFull, Reason: reply}
	}

	port, err := strconv.Atoi(reply)
	if err != nil || port <= 0 || port > 65535 {
		c.state = StateDisconnected
		return 0, &protocol.Error{Kind: protocol.KindProtocol, Reason: fmt.Sprintf("unexpected hello reply %q", reply)}
	}

	priv, err := network.Dial(ctx, c.host, port, c.opts.dialOptions())
	if err != nil {
		c.state = StateDisconnected
		return 0, protocol.NewError(protocol.KindConnect, err)
	}

	c.userPort = port
	c.priv = priv
	c.state = StatePrivateSocketOpen

	c.logger.Debug().Int("user_port", port).Msg("private socket open")
	return port, nil
}

// Connect joins the server as username. When no private socket exists
// yet, Hello is performed first. It returns the join, reject, notice and
// status messages seen during negotiation.
func (c *Client) Connect(ctx context.Context, username, clientName string, conn ConnType) (*protocol.Buffer, error) {
	if c.priv == nil {
		if _, err := c.Hello(ctx); err != nil {
			return nil, err
		}
	}

	c.state = StateJoining
	joinBuffer := NewBuffer(false)

	response, err := c.SendMessage(NewClientInfo(username, clientName, conn))
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		for _, m := range response.Messages() {
			typ := TypeOf(m)
			if isJoinType(typ) {
				joinBuffer.Add(m)
			}

			switch typ {
			case ClientJoin:
				c.state = StateJoined
				c.logger.Info().Str("username", username).Msg("joined server")
				return joinBuffer, nil
			case ServerReject:
				c.state = StateRejected
				reject, perr := ParseReject(m.Data)
				if perr != nil {
					return joinBuffer, protocol.NewError(protocol.KindProtocol, perr)
				}
				c.logger.Info().
					Str("username", reject.Username).
					Int("user_id", reject.UserID).
					Str("reason", reject.Reason).
					Msg("server rejected join")
				return joinBuffer, &protocol.Error{
					Kind:     protocol.KindServerReject,
					Username: reject.Username,
					UserID:   reject.UserID,
					Reason:   reject.Reason,
				}
			}
		}

		if attempt >= c.opts.MaxJoinAttempts {
			c.state = StateDisconnected
			return joinBuffer, &protocol.Error{
				Kind:   protocol.KindJoinExhausted,
				Reason: fmt.Sprintf("no join or reject after %d exchanges", attempt),
			}
		}

		response, err = c.SendMessage(NewClientAck())
		if err != nil {
			return joinBuffer, err
		}
	}
}

func isJoinType(t MessageType) bool {
	for _, jt := range joinTypes {
		if t == jt {
			return true
		}
	}
	return false
}

// Chat sends a global chat message.
func (c *Client) Chat(message string) (*protocol.Buffer, error) {
	return c.SendMessage(NewChatGlobal(message, ""))
}

// Disconnect sends a quit message.
func (c *Client) Disconnect(message string) (*protocol.Buffer, error) {
	response, err := c.SendMessage(NewClientQuit(message))
	if err == nil {
		c.state = StateDisconnected
	}
	return response, err
}

// PingStats summarises a ping run.
type PingStats struct {
	// AverageMS is the truncated mean round-trip time of the successful
	// attempts, in milliseconds.
	AverageMS int
	Drops     int
	Attempts  int
}

// Ping sends count sequential pings on the public socket. An attempt
// succeeds only when the exact pong literal arrives before the timeout.
// It fails with a KindTimeout error when every attempt drops.
func (c *Client) Ping(count int) (PingStats, error) {
	if c.pub == nil {
		return PingStats{}, errClosed
	}
	rtts := make([]*time.Duration, 0, count)
	for i := 0; i < count; i++ {
		rtts = append(rtts, c.pingOnce())
	}

	stats, err := SummarizePings(rtts)
	if err != nil {
		return stats, err
	}

	c.logger.Debug().
		Int("avg_ms", stats.AverageMS).
		Int("drops", stats.Drops).
		Msg("ping complete")
	return stats, nil
}

func (c *Client) pingOnce() *time.Duration {
	start := time.Now()
	pong, err := c.pub.SendAndReceive(protocol.PingPacket, false)
	if err != nil {
		c.logger.Trace().Err(err).Msg("ping dropped")
		return nil
	}
	if string(pong) != string(protocol.PongPacket) {
		c.logger.Trace().Bytes("reply", pong).Msg("unexpected ping reply")
		return nil
	}
	rtt := time.Since(start)
	return &rtt
}

// SummarizePings aggregates per-attempt round-trip times; nil entries are
// drops.
func SummarizePings(rtts []*time.Duration) (PingStats, error) {
	stats := PingStats{Attempts: len(rtts)}

	var total int64
	var ok int64
	for _, rtt := range rtts {
		if rtt == nil {
			stats.Drops++
			continue
		}
		total += rtt.Milliseconds()
		ok++
	}

	if ok == 0 {
		return stats, &protocol.Error{
			Kind:   protocol.KindTimeout,
			Reason: fmt.Sprintf("all %d pings dropped", len(rtts)),
		}
	}

	stats.AverageMS = int(total / ok)
	return stats, nil
}

var errClosed = &protocol.Error{Kind: protocol.KindNotConnected, Reason: "client is closed"}

// Close closes both sockets and discards the session buffers. Hello,
// Ping and every message operation fail with KindNotConnected afterwards.
func (c *Client) Close() error {
	var errs []error
	if c.priv != nil {
		errs = append(errs, c.priv.Close())
		c.priv = nil
	}
	if c.pub != nil {
		errs = append(errs, c.pub.Close())
		c.pub = nil
	}
	c.clientBuffer = NewBuffer(true)
	c.serverBuffer = NewBuffer(false)
	if c.state != StateRejected && c.state != StateFull {
		c.state = StateDisconnected
	}
	return errors.Join(errs...)
}

func wrapTransport(err error) error {
	if network.IsTimeout(err) {
		return protocol.NewError(protocol.KindTimeout, err)
	}
	return protocol.NewError(protocol.KindConnect, err)
}
