package vision

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Correlator runs normalized cross-correlation through OpenCV's matchTemplate.
type Correlator struct{}

func (Correlator) Correlate(img, tmpl *mat.Dense) (*mat.Dense, error) {
	ir, ic := img.Dims()
	tr, tc := tmpl.Dims()
	if tr > ir || tc > ic {
		return nil, fmt.Errorf("template %dx%d larger than image %dx%d", tc, tr, ic, ir)
	}

	im := denseToMat(img)
	defer im.Close()
	tm := denseToMat(tmpl)
	defer tm.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(im, tm, &result, gocv.TmCcoeffNormed, mask)
	if result.Empty() {
		return nil, fmt.Errorf("matchTemplate returned no result")
	}

	rows, cols := result.Rows(), result.Cols()
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Set(y, x, float64(result.GetFloatAt(y, x)))
		}
	}
	return out, nil
}

func denseToMat(d *mat.Dense) gocv.Mat {
	r, c := d.Dims()
	m := gocv.NewMatWithSize(r, c, gocv.MatTypeCV32F)
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			m.SetFloatAt(y, x, float32(d.At(y, x)))
		}
	}
	return m
}
