package link

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/types"
)

// Self-test exchange between an acceptor ("serve") and an initiator ("dial"). Every primitive
// of the wire codec crosses the link at least once in each direction where it makes sense.
const (
	selfTestGreeting = 32
	selfTestServeInt = 333
	selfTestDialInt  = 44
	selfTestLarge    = 100000
	selfTestSmall    = 10000
)

func greeting(s string) []byte {
	b := make([]byte, selfTestGreeting)
	copy(b, s)
	return b
}

func filled(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

func expectFilled(what string, got []byte, n int, v byte) error {
	if !bytes.Equal(got, filled(n, v)) {
		return fmt.Errorf("%s: expected %d bytes of %d, got %d bytes", what, n, v, len(got))
	}
	return nil
}

// ServeSelfTest runs the acceptor side. It echoes the raw frame it receives back compressed
// and returns it.
func ServeSelfTest(c *transport.Codec, l hclog.Logger) (types.Frame, error) {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	ch := c.Channel()

	if err := ch.Send(greeting("Server")); err != nil {
		return types.Frame{}, err
	}
	peer := make([]byte, selfTestGreeting)
	if _, err := ch.Receive(peer); err != nil {
		return types.Frame{}, err
	}
	l.Info("greeting", "peer", string(bytes.TrimRight(peer, "\x00")))

	if err := c.SendUInt32(selfTestServeInt); err != nil {
		return types.Frame{}, err
	}
	v, err := c.ReceiveUInt32()
	if err != nil {
		return types.Frame{}, err
	}
	if v != selfTestDialInt {
		return types.Frame{}, fmt.Errorf("uint32: expected %d, got %d", selfTestDialInt, v)
	}

	if err := c.SendBuffer(filled(selfTestLarge, 111)); err != nil {
		return types.Frame{}, err
	}
	buf, err := c.ReceiveBuffer()
	if err != nil {
		return types.Frame{}, err
	}
	if err := expectFilled("first buffer", buf, selfTestLarge, 222); err != nil {
		return types.Frame{}, err
	}
	l.Info("first buffer correct")

	if err := c.SendBuffer(filled(selfTestSmall, 10)); err != nil {
		return types.Frame{}, err
	}

	f, err := c.ReceiveFrameRaw()
	if err != nil {
		return types.Frame{}, err
	}
	l.Info("raw frame received", "cols", f.Cols, "rows", f.Rows)

	if _, err := c.SendFrameCompressed(f); err != nil {
		return types.Frame{}, err
	}
	return f, nil
}

// DialSelfTest runs the initiator side with img as the test picture and returns the frame the
// acceptor sent back compressed.
func DialSelfTest(c *transport.Codec, img types.Frame, l hclog.Logger) (types.Frame, error) {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	ch := c.Channel()

	peer := make([]byte, selfTestGreeting)
	if _, err := ch.Receive(peer); err != nil {
		return types.Frame{}, err
	}
	l.Info("greeting", "peer", string(bytes.TrimRight(peer, "\x00")))
	if err := ch.Send(greeting("Client")); err != nil {
		return types.Frame{}, err
	}

	v, err := c.ReceiveUInt32()
	if err != nil {
		return types.Frame{}, err
	}
	if v != selfTestServeInt {
		return types.Frame{}, fmt.Errorf("uint32: expected %d, got %d", selfTestServeInt, v)
	}
	if err := c.SendUInt32(selfTestDialInt); err != nil {
		return types.Frame{}, err
	}

	buf, err := c.ReceiveBuffer()
	if err != nil {
		return types.Frame{}, err
	}
	if err := expectFilled("first buffer", buf, selfTestLarge, 111); err != nil {
		return types.Frame{}, err
	}
	l.Info("first buffer correct")

	if err := c.SendBuffer(filled(selfTestLarge, 222)); err != nil {
		return types.Frame{}, err
	}
	if buf, err = c.ReceiveBuffer(); err != nil {
		return types.Frame{}, err
	}
	if err := expectFilled("second buffer", buf, selfTestSmall, 10); err != nil {
		return types.Frame{}, err
	}
	l.Info("second buffer correct")

	if err := c.SendFrameRaw(img.Compact()); err != nil {
		return types.Frame{}, err
	}
	return c.ReceiveFrameCompressed()
}
