package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/andresmejia3/roverlink/internal/detect"
	"github.com/andresmejia3/roverlink/internal/types"
)

func gradient(rows, cols int) types.Frame {
	f := types.NewFrame(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*f.Stride + x*3
			f.Pix[i] = byte(x * 255 / cols)
			f.Pix[i+1] = byte(y * 255 / rows)
			f.Pix[i+2] = 128
		}
	}
	return f
}

func TestJPEGRoundTrip(t *testing.T) {
	f := gradient(240, 320)
	data, err := JPEG{}.Encode(f, 95)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := JPEG{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 240, got.Rows)
	assert.Equal(t, 320, got.Cols)
	assert.True(t, got.Contiguous())

	for _, p := range []types.Point{{X: 10, Y: 10}, {X: 160, Y: 120}, {X: 300, Y: 200}} {
		wb, wg, wr := f.At(p.X, p.Y)
		b, g, r := got.At(p.X, p.Y)
		assert.InDelta(t, int(wb), int(b), 12, "blue at %v", p)
		assert.InDelta(t, int(wg), int(g), 12, "green at %v", p)
		assert.InDelta(t, int(wr), int(r), 12, "red at %v", p)
	}
}

func TestJPEGQualityShrinksPayload(t *testing.T) {
	f := gradient(120, 160)
	hi, err := JPEG{}.Encode(f, 100)
	require.NoError(t, err)
	lo, err := JPEG{}.Encode(f, 5)
	require.NoError(t, err)
	assert.Less(t, len(lo), len(hi))
}

func TestJPEGDecodeGarbage(t *testing.T) {
	_, err := JPEG{}.Decode([]byte("definitely not a jpeg"))
	assert.Error(t, err)
}

func TestCorrelatorMatchesPureGo(t *testing.T) {
	img := mat.NewDense(12, 12, nil)
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(y, x, float64((x*x*31+y*17+x*y*7)%23)/22)
		}
	}
	tmpl := mat.NewDense(4, 4, nil)
	var sum float64
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := img.At(y+5, x+3)
			tmpl.Set(y, x, v)
			sum += v
		}
	}
	mean := sum / 16
	tmpl.Apply(func(_, _ int, v float64) float64 { return v - mean }, tmpl)

	want, err := detect.NCC{}.Correlate(img, tmpl)
	require.NoError(t, err)
	got, err := Correlator{}.Correlate(img, tmpl)
	require.NoError(t, err)

	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, wr, gr)
	require.Equal(t, wc, gc)

	_, at := detect.MaxLoc(got)
	assert.Equal(t, types.Point{X: 3, Y: 5}, at)
	assert.InDelta(t, 1.0, got.At(5, 3), 1e-3)
}
