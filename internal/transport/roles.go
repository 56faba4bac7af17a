package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Dial is the initiator role: it resolves host and connects to port.
func Dial(ctx context.Context, host string, port int, l hclog.Logger) (*Channel, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrConnection, addr, err)
	}
	return NewChannel(conn, l), nil
}

// Acceptor is the listening role. It accepts exactly one peer; the listening socket is kept
// open only so both are released together by Close.
type Acceptor struct {
	ln      net.Listener
	timeout time.Duration
	peer    *Channel
	l       hclog.Logger
}

// Listen binds port on all interfaces with address/port reuse enabled. timeout is applied to
// every receive on the accepted channel.
func Listen(ctx context.Context, port int, timeout time.Duration, l hclog.Logger) (*Acceptor, error) {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	lc := net.ListenConfig{Control: reuseAddrPort}
	ln, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("%w: listen on port %d: %w", ErrConnection, port, err)
	}
	return &Acceptor{ln: ln, timeout: timeout, l: l}, nil
}

// Addr returns the bound address.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Port returns the bound TCP port, useful after listening on port 0.
func (a *Acceptor) Port() int {
	if tcp, ok := a.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Accept blocks until one peer connects or ctx is done.
func (a *Acceptor) Accept(ctx context.Context) (*Channel, error) {
	if a.peer != nil {
		return nil, fmt.Errorf("%w: peer %s already accepted", ErrConnection, a.peer.RemoteAddr())
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.ln.Close()
		case <-done:
		}
	}()

	conn, err := a.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: accept: %w", ErrConnection, ctx.Err())
		}
		return nil, fmt.Errorf("%w: accept: %w", ErrConnection, err)
	}
	a.l.Info("peer connected", "addr", conn.RemoteAddr().String())

	a.peer = NewChannel(conn, a.l)
	a.peer.SetTimeout(a.timeout)
	return a.peer, nil
}

// Close releases the accepted connection and the listening socket.
func (a *Acceptor) Close() error {
	if a.peer != nil {
		a.peer.Close()
	}
	return a.ln.Close()
}
