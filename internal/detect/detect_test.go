package detect

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/andresmejia3/roverlink/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// checker draws a size x size checkerboard with cell-pixel squares.
func checker(size, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// frameWith pastes a gray pattern into a black frame at (ox, oy).
func frameWith(rows, cols int, pattern *image.Gray, ox, oy int) types.Frame {
	f := types.NewFrame(rows, cols)
	b := pattern.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := pattern.GrayAt(x, y).Y
			i := (oy+y)*f.Stride + (ox+x)*3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = v, v, v
		}
	}
	return f
}

func TestScales(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, Scales(3, 0.1, 0.3), 1e-12)
	assert.Equal(t, []float64{0.5}, Scales(1, 0.5, 0.9))
	assert.Nil(t, Scales(0, 0.1, 0.2))

	s := Scales(24, 0.02, 0.3)
	require.Len(t, s, 24)
	for i := 1; i < len(s); i++ {
		assert.Greater(t, s[i], s[i-1], "scales must ascend")
	}
	assert.InDelta(t, 0.3, s[23], 1e-12)
}

func TestPrepareTemplatesNormalization(t *testing.T) {
	templates, err := PrepareTemplates(checker(20, 5), []float64{0.5, 1.0})
	require.NoError(t, err)
	require.Len(t, templates, 2)

	for _, tpl := range templates {
		var sum, abs float64
		for _, v := range tpl.Data.RawMatrix().Data {
			sum += v
			abs += math.Abs(v)
		}
		assert.InDelta(t, 0, sum, 1e-9, "scale %.2f not zero-mean", tpl.Scale)
		assert.InDelta(t, 2, abs, 1e-9, "scale %.2f energy", tpl.Scale)
	}
	w, h := templates[1].Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)
	w, _ = templates[0].Size()
	assert.Equal(t, 10, w)
}

func TestPrepareTemplatesDegenerate(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	_, err := PrepareTemplates(flat, []float64{1})
	assert.ErrorIs(t, err, ErrDegenerateTemplate)

	_, err = PrepareTemplates(checker(20, 5), []float64{0.01})
	assert.ErrorIs(t, err, ErrDegenerateTemplate, "template shrunk below one pixel")

	_, err = NewEngine(flat, []float64{0.5, 1}, NCC{}, DefaultThreshold)
	assert.ErrorIs(t, err, ErrDegenerateTemplate)
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		wantScale  float64
		wantFound  bool
	}{
		{
			name: "maximum wins",
			candidates: []Candidate{
				{Scale: 0.1, Score: 0.2, Valid: true},
				{Scale: 0.2, Score: 0.9, Valid: true},
				{Scale: 0.3, Score: 0.5, Valid: true},
			},
			wantScale: 0.2,
			wantFound: true,
		},
		{
			name: "tie keeps the first scale",
			candidates: []Candidate{
				{Scale: 0.1, Score: 0.4, Valid: true},
				{Scale: 0.2, Score: 0.8, Valid: true},
				{Scale: 0.3, Score: 0.8, Valid: true},
			},
			wantScale: 0.2,
			wantFound: true,
		},
		{
			name: "invalid candidates are skipped",
			candidates: []Candidate{
				{Scale: 0.1, Score: 5, Valid: false},
				{Scale: 0.2, Score: -0.3, Valid: true},
			},
			wantScale: 0.2,
			wantFound: true,
		},
		{
			name:       "nothing valid",
			candidates: []Candidate{{Scale: 0.1}, {Scale: 0.2}},
			wantFound:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Reduce(tt.candidates)
			assert.Equal(t, tt.wantFound, found)
			if found {
				assert.Equal(t, tt.wantScale, got.Scale)
			}
		})
	}
}

func TestReduceIsDeterministic(t *testing.T) {
	candidates := make([]Candidate, 16)
	for i := range candidates {
		candidates[i] = Candidate{Scale: float64(i), Score: 0.7, Valid: true}
	}
	for i := 0; i < 100; i++ {
		got, _ := Reduce(candidates)
		require.Equal(t, 0.0, got.Scale)
	}
}

func TestActionableBoundary(t *testing.T) {
	assert.False(t, Actionable(0.6, 0.6), "score equal to the threshold is not actionable")
	assert.True(t, Actionable(math.Nextafter(0.6, 1), 0.6))
	assert.False(t, Actionable(0.59, 0.6))
}

func TestSameSizeAndMaxLoc(t *testing.T) {
	valid := mat.NewDense(2, 3, []float64{
		0.1, 0.2, 0.3,
		0.9, 0.4, 0.9,
	})
	same := SameSize(valid, 5, 6, 4, 4, -1)
	r, c := same.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 6, c)
	assert.Equal(t, -1.0, same.At(0, 0))
	assert.Equal(t, 0.1, same.At(2, 2))

	score, pos := MaxLoc(same)
	assert.Equal(t, 0.9, score)
	assert.Equal(t, types.Point{X: 2, Y: 3}, pos, "first maximum in row-major order")
}

func TestEngineFindsPattern(t *testing.T) {
	pattern := checker(20, 5)
	frame := frameWith(60, 80, pattern, 30, 20)

	engine, err := NewEngine(pattern, []float64{0.5, 1.0}, NCC{}, DefaultThreshold)
	require.NoError(t, err)

	det, err := engine.Detect(frame)
	require.NoError(t, err)

	assert.True(t, det.Actionable)
	assert.Equal(t, 1.0, det.Scale)
	assert.InDelta(t, 1.0, det.Confidence, 1e-6)
	assert.Equal(t, types.Point{X: 40, Y: 30}, det.Position)
	assert.Equal(t, image.Rect(30, 20, 50, 40), det.Rect())
}

func TestEngineSkipsOversizedScales(t *testing.T) {
	pattern := checker(20, 5)
	frame := frameWith(16, 16, checker(10, 5), 0, 0)

	engine, err := NewEngine(pattern, []float64{1.0}, NCC{}, DefaultThreshold)
	require.NoError(t, err)

	det, err := engine.Detect(frame)
	require.NoError(t, err)
	assert.False(t, det.Actionable)
	assert.Zero(t, det.Confidence)
}

type failingCorrelator struct{}

func (failingCorrelator) Correlate(_, _ *mat.Dense) (*mat.Dense, error) {
	return nil, errors.New("boom")
}

func TestEngineCorrelatorError(t *testing.T) {
	engine, err := NewEngine(checker(8, 2), []float64{1}, failingCorrelator{}, DefaultThreshold)
	require.NoError(t, err)
	_, err = engine.Detect(types.NewFrame(20, 20))
	assert.Error(t, err)
}

func TestDigitTensor(t *testing.T) {
	f := types.NewFrame(50, 50)
	for i := range f.Pix {
		f.Pix[i] = 255
	}
	tensor, err := DigitTensor(f, image.Rect(10, 10, 40, 40))
	require.NoError(t, err)
	require.Len(t, tensor, TensorSide*TensorSide)
	for _, v := range tensor {
		assert.InDelta(t, 1.0, v, 1e-6)
	}

	_, err = DigitTensor(f, image.Rect(60, 60, 80, 80))
	assert.Error(t, err)
}
