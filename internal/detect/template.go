// Package detect finds a reference template in frames over a range of scales.
package detect

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/roverlink/internal/types"
	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateTemplate is returned at startup when a scaled template has no energy left after
// removing its mean, or shrinks below one pixel.
var ErrDegenerateTemplate = errors.New("degenerate template")

// templateEnergy is the sum of absolute values every prepared template is normalized to.
const templateEnergy = 2.0

// Template is one pre-processed, zero-mean, fixed-energy variant of the reference pattern.
type Template struct {
	Scale float64
	Data  *mat.Dense
}

// Size returns the template width and height in pixels.
func (t Template) Size() (w, h int) {
	r, c := t.Data.Dims()
	return c, r
}

// Scales returns n factors linearly spaced from lo to hi, ascending when lo < hi.
func Scales(n int, lo, hi float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

// PrepareTemplates resizes src by every scale and normalizes each result.
func PrepareTemplates(src image.Image, scales []float64) ([]Template, error) {
	b := src.Bounds()
	out := make([]Template, 0, len(scales))
	for _, s := range scales {
		w := int(math.Round(float64(b.Dx()) * s))
		h := int(math.Round(float64(b.Dy()) * s))
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("%w: scale %.3f shrinks %dx%d template to %dx%d", ErrDegenerateTemplate, s, b.Dx(), b.Dy(), w, h)
		}

		g := gift.New(gift.Grayscale(), gift.Resize(w, h, gift.LinearResampling))
		gray := image.NewGray(g.Bounds(b))
		g.Draw(gray, src)

		data, err := normalizeTemplate(grayToDense(gray))
		if err != nil {
			return nil, fmt.Errorf("scale %.3f: %w", s, err)
		}
		out = append(out, Template{Scale: s, Data: data})
	}
	return out, nil
}

// normalizeTemplate subtracts the mean and scales so the absolute values sum to templateEnergy.
func normalizeTemplate(d *mat.Dense) (*mat.Dense, error) {
	r, c := d.Dims()
	mean := mat.Sum(d) / float64(r*c)
	d.Apply(func(_, _ int, v float64) float64 { return v - mean }, d)

	var energy float64
	for _, v := range d.RawMatrix().Data {
		energy += math.Abs(v)
	}
	if energy < 1e-9 {
		return nil, fmt.Errorf("%w: no energy after mean removal", ErrDegenerateTemplate)
	}
	d.Scale(templateEnergy/energy, d)
	return d, nil
}

func grayToDense(g *image.Gray) *mat.Dense {
	b := g.Bounds()
	d := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		for x, v := range row {
			d.Set(y, x, float64(v)/255)
		}
	}
	return d
}

// GrayFrame converts a BGR frame to a single channel in [0, 1].
func GrayFrame(f types.Frame) *mat.Dense {
	d := mat.NewDense(f.Rows, f.Cols, nil)
	raw := d.RawMatrix()
	for y := 0; y < f.Rows; y++ {
		for x := 0; x < f.Cols; x++ {
			b, g, r := f.At(x, y)
			raw.Data[y*raw.Stride+x] = (0.114*float64(b) + 0.587*float64(g) + 0.299*float64(r)) / 255
		}
	}
	return d
}
