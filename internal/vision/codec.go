// Package vision binds the OpenCV implementations of the rover's image collaborators: the JPEG
// frame codec, camera capture, the correlation primitive and the symbol classifier.
package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/roverlink/internal/types"
)

// JPEG is the compressed-frame codec used on the link.
type JPEG struct{}

func (JPEG) Encode(f types.Frame, quality int) ([]byte, error) {
	m, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (JPEG) Decode(data []byte) (types.Frame, error) {
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return types.Frame{}, fmt.Errorf("jpeg decode: %w", err)
	}
	defer m.Close()
	if m.Empty() {
		return types.Frame{}, fmt.Errorf("jpeg decode: not an image")
	}
	return MatToFrame(m)
}

// FrameToMat copies f into a new 8UC3 Mat. The caller closes it.
func FrameToMat(f types.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}
	f = f.Compact()
	return gocv.NewMatFromBytes(f.Rows, f.Cols, gocv.MatTypeCV8UC3, f.Pix[:f.Rows*f.Stride])
}

// MatToFrame copies a BGR Mat into a contiguous frame.
func MatToFrame(m gocv.Mat) (types.Frame, error) {
	if m.Type() != gocv.MatTypeCV8UC3 {
		return types.Frame{}, fmt.Errorf("expected 8UC3 image, got type %v", m.Type())
	}
	f := types.NewFrame(m.Rows(), m.Cols())
	if !m.IsContinuous() {
		c := m.Clone()
		defer c.Close()
		m = c
	}
	copy(f.Pix, m.ToBytes())
	return f, nil
}
