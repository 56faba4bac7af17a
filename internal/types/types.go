package types

import "fmt"

// Frame is a BGR image with 3 bytes per pixel.
// Stride is the distance in bytes between two rows; a frame is contiguous when Stride == Cols*3.
type Frame struct {
	Rows   int
	Cols   int
	Stride int
	Pix    []byte
}

// NewFrame allocates a contiguous, zeroed frame.
func NewFrame(rows, cols int) Frame {
	return Frame{Rows: rows, Cols: cols, Stride: cols * 3, Pix: make([]byte, rows*cols*3)}
}

// Contiguous reports whether the pixel rows are packed back to back.
func (f Frame) Contiguous() bool {
	return f.Stride == f.Cols*3 && len(f.Pix) >= f.Rows*f.Cols*3
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.Rows == 0 || f.Cols == 0
}

// At returns the B, G, R samples at (x, y).
func (f Frame) At(x, y int) (b, g, r byte) {
	i := y*f.Stride + x*3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Sub returns a view on the rectangle starting at (x, y). The view shares memory with f and is
// not contiguous unless it spans full rows.
func (f Frame) Sub(x, y, cols, rows int) (Frame, error) {
	if x < 0 || y < 0 || cols <= 0 || rows <= 0 || x+cols > f.Cols || y+rows > f.Rows {
		return Frame{}, fmt.Errorf("sub-frame (%d,%d %dx%d) outside %dx%d", x, y, cols, rows, f.Cols, f.Rows)
	}
	start := y*f.Stride + x*3
	end := (y+rows-1)*f.Stride + (x+cols)*3
	return Frame{Rows: rows, Cols: cols, Stride: f.Stride, Pix: f.Pix[start:end]}, nil
}

// Compact returns f itself when it is contiguous, otherwise a packed copy.
func (f Frame) Compact() Frame {
	if f.Contiguous() {
		return f
	}
	out := NewFrame(f.Rows, f.Cols)
	for y := 0; y < f.Rows; y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], f.Pix[y*f.Stride:])
	}
	return out
}

// Velocity is a per-channel duty cycle vector for the four drive outputs.
type Velocity [4]int32

// Point is a pixel position in a frame.
type Point struct {
	X, Y int
}

// DetectionResult is the best template match of one frame.
type DetectionResult struct {
	Scale      float64
	Position   Point
	Confidence float64
}
