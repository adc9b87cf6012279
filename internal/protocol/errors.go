package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer is returned when input ends before a field does.
	ErrShortBuffer = errors.New("short buffer")

	// ErrFieldOverflow is returned when a value does not fit its wire field.
	ErrFieldOverflow = errors.New("field overflow")

	// ErrIDExhausted is returned by a managed buffer whose next ID does
	// not fit the codec's id field.
	ErrIDExhausted = errors.New("message ids exhausted")
)

// ErrorKind classifies a protocol-level failure.
type ErrorKind int

const (
	KindProtocol ErrorKind = iota
	KindConnect
	KindNotConnected
	KindTimeout
	KindServerFull
	KindNoHello
	KindServerReject
	KindPeerReject
	KindJoinExhausted
)

var errorKindStrings = map[ErrorKind]string{
	KindProtocol:      "protocol",
	KindConnect:       "connect",
	KindNotConnected:  "not_connected",
	KindTimeout:       "timeout",
	KindServerFull:    "server_full",
	KindNoHello:       "no_hello",
	KindServerReject:  "server_reject",
	KindPeerReject:    "peer_reject",
	KindJoinExhausted: "join_exhausted",
}

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	if s, ok := errorKindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// Error is a protocol outcome that ended a session. Reject kinds carry
// the fields the remote side supplied.
type Error struct {
	Kind     ErrorKind
	Username string
	UserID   int
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerReject:
		return fmt.Sprintf("server rejected %s (id %d): %s", e.Username, e.UserID, e.Reason)
	case KindServerFull:
		return "server is full"
	case KindNoHello:
		return "server is refusing to respond to a hello packet"
	case KindPeerReject:
		return "peer rejected the connection"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
