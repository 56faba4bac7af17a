package detect

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NCC is a direct zero-mean normalized cross-correlation. It is slow compared to the OpenCV
// correlator but has no native dependency.
type NCC struct{}

// Correlate expects tmpl to be zero-mean, as produced by PrepareTemplates.
func (NCC) Correlate(img, tmpl *mat.Dense) (*mat.Dense, error) {
	ir, ic := img.Dims()
	tr, tc := tmpl.Dims()
	out := mat.NewDense(ir-tr+1, ic-tc+1, nil)

	ti := tmpl.RawMatrix()
	var tnorm float64
	for _, v := range ti.Data {
		tnorm += v * v
	}
	tnorm = math.Sqrt(tnorm)

	im := img.RawMatrix()
	n := float64(tr * tc)
	for y := 0; y <= ir-tr; y++ {
		for x := 0; x <= ic-tc; x++ {
			var dot, sum, sumSq float64
			for ty := 0; ty < tr; ty++ {
				irow := im.Data[(y+ty)*im.Stride+x : (y+ty)*im.Stride+x+tc]
				trow := ti.Data[ty*ti.Stride : ty*ti.Stride+tc]
				for tx, iv := range irow {
					dot += iv * trow[tx]
					sum += iv
					sumSq += iv * iv
				}
			}
			variance := sumSq - sum*sum/n
			if variance <= 1e-12 || tnorm == 0 {
				continue
			}
			out.Set(y, x, dot/(math.Sqrt(variance)*tnorm))
		}
	}
	return out, nil
}
