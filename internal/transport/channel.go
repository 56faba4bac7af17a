// Package transport implements the rover/base link: a chunked, timeout-aware byte channel, the
// big-endian wire codec on top of it, and the initiator/acceptor connection roles.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ChunkSize bounds a single write or read so one call never exceeds typical kernel buffers.
const ChunkSize = 65535

// Channel is a duplex byte stream bound to one peer. Send and Receive may run concurrently with
// each other, but each direction must be driven by one goroutine at a time.
type Channel struct {
	conn    net.Conn
	timeout time.Duration
	l       hclog.Logger
}

// NewChannel wraps an established connection.
func NewChannel(conn net.Conn, l hclog.Logger) *Channel {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &Channel{conn: conn, l: l}
}

// SetTimeout sets how long a single read may wait for data. Zero waits forever.
func (c *Channel) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Timeout returns the receive timeout.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// RemoteAddr returns the peer address.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// Send writes all of p, in chunks of at most ChunkSize bytes.
func (c *Channel) Send(p []byte) error {
	total := 0
	for total < len(p) {
		end := min(total+ChunkSize, len(p))
		n, err := c.conn.Write(p[total:end])
		total += n
		if err != nil {
			if retryable(err) {
				continue
			}
			return fmt.Errorf("%w: sent %d of %d bytes: %w", ErrIO, total, len(p), err)
		}
	}
	return nil
}

// Receive reads until len(p) bytes arrived. When the timeout expires or the peer closes the
// connection first, it returns the bytes obtained so far with a *ShortReadError.
func (c *Channel) Receive(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		end := min(total+ChunkSize, len(p))
		if c.timeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
				return total, fmt.Errorf("%w: set read deadline: %w", ErrIO, err)
			}
		}
		n, err := c.conn.Read(p[total:end])
		total += n
		if err == nil || total == len(p) {
			continue
		}
		switch {
		case isTimeout(err):
			c.l.Debug("timeout waiting for data", "got", total, "want", len(p))
			return total, &ShortReadError{Reason: Timeout, Got: total, Want: len(p)}
		case errors.Is(err, io.EOF):
			c.l.Info("connection closed by peer", "got", total, "want", len(p))
			return total, &ShortReadError{Reason: PeerClosed, Got: total, Want: len(p)}
		case retryable(err):
			continue
		default:
			return total, fmt.Errorf("%w: received %d of %d bytes: %w", ErrIO, total, len(p), err)
		}
	}
	return total, nil
}

func retryable(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
