package detect

import (
	"fmt"
	"image"

	"github.com/andresmejia3/roverlink/internal/types"
	"golang.org/x/image/draw"
)

// TensorSide is the edge of the square input the symbol classifier expects.
const TensorSide = 28

// Classifier maps a TensorSide x TensorSide tensor to a symbol class.
type Classifier interface {
	Classify(tensor []float32) (int, error)
}

// DigitTensor crops rect from f, converts it to gray, resizes it to TensorSide x TensorSide and
// returns it row-major in [0, 1].
func DigitTensor(f types.Frame, rect image.Rectangle) ([]float32, error) {
	rect = rect.Intersect(image.Rect(0, 0, f.Cols, f.Rows))
	if rect.Empty() {
		return nil, fmt.Errorf("crop outside %dx%d frame", f.Cols, f.Rows)
	}

	src := image.NewGray(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			b, g, r := f.At(x, y)
			src.Pix[src.PixOffset(x, y)] = uint8((114*uint32(b) + 587*uint32(g) + 299*uint32(r) + 500) / 1000)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, TensorSide, TensorSide))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, rect, draw.Src, nil)

	out := make([]float32, TensorSide*TensorSide)
	for i, v := range dst.Pix {
		out[i] = float32(v) / 255
	}
	return out, nil
}
