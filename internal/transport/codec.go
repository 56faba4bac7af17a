package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/andresmejia3/roverlink/internal/types"
)

const (
	// DefaultQuality is the compression quality used until SetQuality is called.
	DefaultQuality = 80
	// MaxBufferLen is the largest length prefix a receiver accepts.
	MaxBufferLen = 64 << 20
)

// FrameCodec compresses frames to opaque buffers and back.
type FrameCodec interface {
	Encode(f types.Frame, quality int) ([]byte, error)
	Decode(buf []byte) (types.Frame, error)
}

// Codec frames integers, buffers, pictures and commands on a Channel.
// Protocol:
//
//	UInt32          4 bytes big-endian
//	Buffer          [UInt32 N][N bytes]
//	FrameRaw        [UInt32 rows][UInt32 cols][rows*cols*3 bytes]
//	FrameCompressed Buffer holding a FrameCodec payload
//	Command         UInt32 (see types.Command.Encode)
//	Velocity        4 x UInt32, two's complement
type Codec struct {
	ch      *Channel
	frames  FrameCodec
	quality int
}

// NewCodec builds a codec on ch. frames may be nil when compressed frames are never exchanged.
func NewCodec(ch *Channel, frames FrameCodec) *Codec {
	return &Codec{ch: ch, frames: frames, quality: DefaultQuality}
}

// Channel returns the underlying byte channel.
func (c *Codec) Channel() *Channel {
	return c.ch
}

// SetQuality sets the compression quality, saturating to [0, 100].
func (c *Codec) SetQuality(q int) {
	c.quality = max(0, min(q, 100))
}

// Quality returns the compression quality.
func (c *Codec) Quality() int {
	return c.quality
}

func (c *Codec) SendUInt32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.ch.Send(b[:])
}

func (c *Codec) ReceiveUInt32() (uint32, error) {
	return c.receiveUInt32(false)
}

// receiveUInt32 reads one word; started tells whether it continues a message already under way.
func (c *Codec) receiveUInt32(started bool) (uint32, error) {
	var b [4]byte
	if err := c.receive(b[:], started); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// receive fills p. A timeout is only a quiet cycle when nothing of the message has arrived yet;
// once a message is under way the stream cannot be resynchronized and the timeout becomes
// ErrProtocol.
func (c *Codec) receive(p []byte, started bool) error {
	_, err := c.ch.Receive(p)
	var sr *ShortReadError
	if errors.As(err, &sr) && sr.Reason == Timeout && (started || sr.Got > 0) {
		return protocolErrorf("message truncated by receive timeout (%v)", sr)
	}
	return err
}

// SendBuffer writes the length prefix followed by the payload.
func (c *Codec) SendBuffer(p []byte) error {
	if uint64(len(p)) > math.MaxUint32 {
		return protocolErrorf("buffer of %d bytes does not fit a length prefix", len(p))
	}
	if err := c.SendUInt32(uint32(len(p))); err != nil {
		return err
	}
	return c.ch.Send(p)
}

// ReceiveBuffer reads a length prefix and exactly that many bytes. On a short read the bytes
// obtained so far are returned together with the error.
func (c *Codec) ReceiveBuffer() ([]byte, error) {
	n, err := c.ReceiveUInt32()
	if err != nil {
		return nil, err
	}
	if n > MaxBufferLen {
		return nil, protocolErrorf("announced buffer length %d exceeds %d", n, MaxBufferLen)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := c.ch.Receive(buf)
	if err != nil {
		var sr *ShortReadError
		if errors.As(err, &sr) && sr.Reason == Timeout {
			err = protocolErrorf("buffer truncated by receive timeout (%v)", sr)
		}
	}
	return buf[:got], err
}

// SendFrameRaw writes the dimensions then the pixels. The frame must be contiguous.
func (c *Codec) SendFrameRaw(f types.Frame) error {
	if !f.Contiguous() {
		return protocolErrorf("frame %dx%d is not contiguous (stride %d)", f.Cols, f.Rows, f.Stride)
	}
	if err := c.SendUInt32(uint32(f.Rows)); err != nil {
		return err
	}
	if err := c.SendUInt32(uint32(f.Cols)); err != nil {
		return err
	}
	return c.ch.Send(f.Pix[:f.Rows*f.Cols*3])
}

func (c *Codec) ReceiveFrameRaw() (types.Frame, error) {
	rows, err := c.ReceiveUInt32()
	if err != nil {
		return types.Frame{}, err
	}
	cols, err := c.receiveUInt32(true)
	if err != nil {
		return types.Frame{}, err
	}
	if uint64(rows)*uint64(cols)*3 > MaxBufferLen {
		return types.Frame{}, protocolErrorf("announced frame %dx%d exceeds %d bytes", cols, rows, MaxBufferLen)
	}
	f := types.NewFrame(int(rows), int(cols))
	if err := c.receive(f.Pix, true); err != nil {
		return types.Frame{}, err
	}
	return f, nil
}

// SendFrameCompressed encodes f at the configured quality and sends it as a Buffer. It returns
// the compressed size.
func (c *Codec) SendFrameCompressed(f types.Frame) (int, error) {
	if c.frames == nil {
		return 0, fmt.Errorf("no frame codec configured")
	}
	data, err := c.frames.Encode(f, c.quality)
	if err != nil {
		return 0, fmt.Errorf("encode frame: %w", err)
	}
	return len(data), c.SendBuffer(data)
}

func (c *Codec) ReceiveFrameCompressed() (types.Frame, error) {
	if c.frames == nil {
		return types.Frame{}, fmt.Errorf("no frame codec configured")
	}
	data, err := c.ReceiveBuffer()
	if err != nil {
		return types.Frame{}, err
	}
	f, err := c.frames.Decode(data)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%w: %d bytes: %w", ErrBadFrame, len(data), err)
	}
	return f, nil
}

func (c *Codec) SendCommand(cmd types.Command) error {
	return c.SendUInt32(cmd.Encode())
}

func (c *Codec) ReceiveCommand() (types.Command, error) {
	w, err := c.ReceiveUInt32()
	if err != nil {
		return types.Command{}, err
	}
	cmd, err := types.DecodeCommand(w)
	if err != nil {
		return types.Command{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return cmd, nil
}

func (c *Codec) SendVelocity(v types.Velocity) error {
	var b [16]byte
	for i, d := range v {
		binary.BigEndian.PutUint32(b[i*4:], uint32(d))
	}
	return c.ch.Send(b[:])
}

func (c *Codec) ReceiveVelocity() (types.Velocity, error) {
	return c.receiveVelocity(false)
}

func (c *Codec) receiveVelocity(started bool) (types.Velocity, error) {
	var b [16]byte
	if err := c.receive(b[:], started); err != nil {
		return types.Velocity{}, err
	}
	var v types.Velocity
	for i := range v {
		v[i] = int32(binary.BigEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// ReceiveCommandVelocity reads a command followed by its velocity as one message: a timeout
// between the two halves is ErrProtocol.
func (c *Codec) ReceiveCommandVelocity() (types.Command, types.Velocity, error) {
	cmd, err := c.ReceiveCommand()
	if err != nil {
		return types.Command{}, types.Velocity{}, err
	}
	v, err := c.receiveVelocity(true)
	if err != nil {
		return types.Command{}, types.Velocity{}, err
	}
	return cmd, v, nil
}
