// Package nettest provides a loopback UDP responder for exercising the
// protocol clients against scripted servers and peers.
package nettest

import (
	"net"
	"sync"
	"testing"
)

// Handler returns the datagrams to send back for a request. Returning no
// datagrams leaves the request unanswered.
type Handler func(req []byte) [][]byte

// Responder is a UDP listener on 127.0.0.1 that answers each datagram
// through a Handler and records everything it receives.
type Responder struct {
	conn    *net.UDPConn
	handler Handler

	mu       sync.Mutex
	received [][]byte

	done chan struct{}
}

// NewResponder starts a responder on an ephemeral loopback port. It is
// closed automatically when the test ends.
func NewResponder(tb testing.TB, handler Handler) *Responder {
	tb.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		tb.Fatalf("failed to start udp responder: %v", err)
	}

	r := &Responder{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}
	go r.serve()
	tb.Cleanup(r.Close)
	return r
}

func (r *Responder) serve() {
	defer close(r.done)

	buf := make([]byte, 8192)
	for {
		n, remote, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		req := make([]byte, n)
		copy(req, buf[:n])

		r.mu.Lock()
		r.received = append(r.received, req)
		r.mu.Unlock()

		if r.handler == nil {
			continue
		}
		for _, reply := range r.handler(req) {
			r.conn.WriteToUDP(reply, remote)
		}
	}
}

// Port returns the listening port.
func (r *Responder) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Host returns the listening host.
func (r *Responder) Host() string {
	return "127.0.0.1"
}

// Received returns a copy of every datagram received so far.
func (r *Responder) Received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.received))
	copy(out, r.received)
	return out
}

// Close stops the responder and waits for its loop to exit.
func (r *Responder) Close() {
	r.conn.Close()
	<-r.done
}
