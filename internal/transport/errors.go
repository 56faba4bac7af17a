package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers socket creation, resolution, bind, listen, accept and connect failures.
	ErrConnection = errors.New("connection error")
	// ErrIO is a send or receive failure other than a timeout or an orderly close.
	ErrIO = errors.New("i/o error")
	// ErrShortRead marks a receive that stopped before its length was satisfied. A timeout
	// before the first byte of a message is not fatal: the caller treats it as "no data this
	// cycle". The Codec reports a timeout inside a message as ErrProtocol instead.
	ErrShortRead = errors.New("short read")
	// ErrProtocol is a message that cannot be satisfied or sent as framed. The stream must not
	// be resynchronized after it.
	ErrProtocol = errors.New("protocol error")
	// ErrBadFrame is a compressed frame that arrived whole but could not be decoded. The
	// stream stays in sync.
	ErrBadFrame = errors.New("undecodable frame")
)

// ShortReadReason tells why a receive ended early.
type ShortReadReason int

const (
	Timeout ShortReadReason = iota
	PeerClosed
)

func (r ShortReadReason) String() string {
	if r == PeerClosed {
		return "peer closed"
	}
	return "timeout"
}

// ShortReadError reports how many bytes a receive obtained before stopping.
type ShortReadError struct {
	Reason ShortReadReason
	Got    int
	Want   int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read (%s): got %d of %d bytes", e.Reason, e.Got, e.Want)
}

func (e *ShortReadError) Is(target error) bool {
	return target == ErrShortRead
}

// IsTimeout reports whether err is a short read caused by the receive timeout.
func IsTimeout(err error) bool {
	var sr *ShortReadError
	return errors.As(err, &sr) && sr.Reason == Timeout
}

// IsPeerClosed reports whether err is a short read caused by the peer closing the connection.
func IsPeerClosed(err error) bool {
	var sr *ShortReadError
	return errors.As(err, &sr) && sr.Reason == PeerClosed
}

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
