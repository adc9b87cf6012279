package network

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smash64-online/netcheck/internal/network/nettest"
)

func echo(req []byte) [][]byte {
	return [][]byte{req}
}

func TestSendAndReceive(t *testing.T) {
	srv := nettest.NewResponder(t, echo)

	conn, err := Dial(context.Background(), srv.Host(), srv.Port(), DialOptions{Timeout: time.Second})
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.SendAndReceive([]byte("PING\x00"), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("PING\x00"), reply)
	assert.False(t, conn.LastActivity().IsZero())
}

func TestSendAndReceiveTimeout(t *testing.T) {
	srv := nettest.NewResponder(t, nil)

	conn, err := Dial(context.Background(), srv.Host(), srv.Port(), DialOptions{Timeout: 50 * time.Millisecond, Retries: 3})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.SendAndReceive([]byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsTimeout(err))

	require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSendAndReceiveRetry(t *testing.T) {
	var calls int32
	srv := nettest.NewResponder(t, func(req []byte) [][]byte {
		// drop the first request
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil
		}
		return [][]byte{req}
	})

	conn, err := Dial(context.Background(), srv.Host(), srv.Port(), DialOptions{Timeout: 100 * time.Millisecond, Retries: 3})
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.SendAndReceive([]byte("hello"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), reply)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendFireAndForget(t *testing.T) {
	srv := nettest.NewResponder(t, nil)

	conn, err := Dial(context.Background(), srv.Host(), srv.Port(), DialOptions{})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, DefaultTimeout, conn.Timeout())
	require.NoError(t, conn.Send([]byte("bye")))

	require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("bye"), srv.Received()[0])
}

var errDeadline = errors.New("deadline not supported")

// deadlineConn fails the deadline calls selected by its flags.
type deadlineConn struct {
	net.Conn
	failWrite bool
	failRead  bool
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	if c.failWrite {
		return errDeadline
	}
	return c.Conn.SetWriteDeadline(t)
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	if c.failRead {
		return errDeadline
	}
	return c.Conn.SetReadDeadline(t)
}

func TestDeadlineErrorsAreReturned(t *testing.T) {
	srv := nettest.NewResponder(t, nil)

	raw, err := net.Dial("udp", net.JoinHostPort(srv.Host(), strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	t.Run("write", func(t *testing.T) {
		conn := NewUDPConn(&deadlineConn{Conn: raw, failWrite: true}, DialOptions{Timeout: time.Second})

		err := conn.Send([]byte("PING\x00"))
		assert.ErrorIs(t, err, errDeadline)

		_, err = conn.SendAndReceive([]byte("PING\x00"), true)
		assert.ErrorIs(t, err, errDeadline)
		assert.False(t, IsTimeout(err))
	})

	t.Run("read", func(t *testing.T) {
		conn := NewUDPConn(&deadlineConn{Conn: raw, failRead: true}, DialOptions{Timeout: time.Second, Retries: 3})

		done := make(chan error, 1)
		go func() {
			_, err := conn.SendAndReceive([]byte("PING\x00"), true)
			done <- err
		}()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, errDeadline)
			assert.False(t, IsTimeout(err), "a deadline failure is not retried as a timeout")
		case <-time.After(2 * time.Second):
			t.Fatal("receive blocked without a read deadline")
		}
	})
}

func TestDialInvalidHost(t *testing.T) {
	_, err := Dial(context.Background(), "256.0.0.1", 27888, DialOptions{Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestListenRebind(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ln, err = Listen(context.Background(), addr)
	require.NoError(t, err)
	assert.NoError(t, ln.Close())
}
