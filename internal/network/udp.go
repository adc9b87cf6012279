// Package network implements the UDP transport used by the protocol
// clients and the listener helpers used by the HTTP service.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smash64-online/netcheck/internal/protocol"
)

// ErrTimeout is returned when no datagram arrives before the read deadline.
var ErrTimeout = errors.New("timed out")

// Default transport settings.
const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 1
)

// DialOptions controls socket establishment and receive behaviour.
type DialOptions struct {
	// Timeout bounds dialing and every blocking receive.
	Timeout time.Duration

	// Retries is the total number of attempts made when an operation
	// times out and retrying was requested.
	Retries int
}

func (o DialOptions) withDefaults() DialOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 1 {
		o.Retries = DefaultRetries
	}
	return o
}

// UDPConn wraps a connected UDP socket with a fixed receive timeout.
// It is not safe for concurrent use.
type UDPConn struct {
	conn    net.Conn
	opts    DialOptions
	logger  zerolog.Logger
	bufSize int

	lastActivity time.Time
}

// Dial opens a connected UDP socket to host:port. Establishment is
// retried up to opts.Retries times while it times out; the last error is
// returned after exhaustion.
func Dial(ctx context.Context, host string, port int, opts DialOptions) (*UDPConn, error) {
	opts = opts.withDefaults()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: opts.Timeout}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		conn, err := dialer.DialContext(ctx, "udp", addr)
		if err == nil {
			return NewUDPConn(conn, opts), nil
		}

		lastErr = err
		if !isNetTimeout(err) {
			break
		}
		log.Debug().
			Err(err).
			Str("addr", addr).
			Int("attempt", attempt).
			Int("max", opts.Retries).
			Msg("udp dial timed out")
	}

	return nil, fmt.Errorf("failed to open udp socket to %s: %w", addr, lastErr)
}

// NewUDPConn wraps an existing connected socket.
func NewUDPConn(conn net.Conn, opts DialOptions) *UDPConn {
	return &UDPConn{
		conn:         conn,
		opts:         opts.withDefaults(),
		bufSize:      protocol.MaxDatagramSize,
		lastActivity: time.Now(),
		logger: log.With().
			Str("component", "udp").
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// Send writes payload without waiting for a reply.
func (c *UDPConn) Send(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send %d bytes: %w", len(payload), err)
	}
	c.lastActivity = time.Now()
	return nil
}

// SendAndReceive writes payload and blocks for exactly one datagram.
// On timeout the exchange is repeated only when retry is set, up to the
// configured number of attempts; otherwise an ErrTimeout is returned.
func (c *UDPConn) SendAndReceive(payload []byte, retry bool) ([]byte, error) {
	attempts := 1
	if retry {
		attempts = c.opts.Retries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.Send(payload); err != nil {
			return nil, err
		}

		data, err := c.receive()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}

		c.logger.Trace().Int("attempt", attempt).Int("max", attempts).Msg("receive timed out")
	}
	return nil, lastErr
}

func (c *UDPConn) receive() ([]byte, error) {
	buf := make([]byte, c.bufSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, err := c.conn.Read(buf)
	if err != nil {
		if isNetTimeout(err) {
			return nil, fmt.Errorf("%w: no reply from %s within %s",
				ErrTimeout, c.conn.RemoteAddr(), c.opts.Timeout)
		}
		return nil, fmt.Errorf("failed to receive: %w", err)
	}

	c.lastActivity = time.Now()
	return buf[:n], nil
}

// Timeout returns the receive timeout.
func (c *UDPConn) Timeout() time.Duration {
	return c.opts.Timeout
}

// RemoteAddr returns the peer address.
func (c *UDPConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LastActivity returns the time of the last successful send or receive.
func (c *UDPConn) LastActivity() time.Time {
	return c.lastActivity
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || isNetTimeout(err)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
