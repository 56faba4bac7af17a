package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/roverlink/internal/types"
)

// Camera reads BGR frames from a capture device.
type Camera struct {
	vc  *gocv.VideoCapture
	buf gocv.Mat
}

// OpenCamera opens device and requests a width x height capture size.
func OpenCamera(device, width, height int) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d is not available", device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return &Camera{vc: vc, buf: gocv.NewMat()}, nil
}

// Read grabs the next frame.
func (c *Camera) Read() (types.Frame, error) {
	if ok := c.vc.Read(&c.buf); !ok || c.buf.Empty() {
		return types.Frame{}, fmt.Errorf("camera read failed")
	}
	return MatToFrame(c.buf)
}

func (c *Camera) Close() error {
	c.buf.Close()
	return c.vc.Close()
}
