package detect

import (
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/roverlink/internal/types"
	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the score a match must exceed to be actionable.
const DefaultThreshold = 0.6

// Correlator computes a normalized cross-correlation map of tmpl slid over img. The returned
// map has (rows(img)-rows(tmpl)+1) x (cols(img)-cols(tmpl)+1) entries.
type Correlator interface {
	Correlate(img, tmpl *mat.Dense) (*mat.Dense, error)
}

// Candidate is the best location found at one scale.
type Candidate struct {
	Scale    float64
	Position types.Point
	Score    float64
	Width    int
	Height   int
	Valid    bool
}

// Detection is the reduced result of one frame.
type Detection struct {
	types.DetectionResult
	Width      int
	Height     int
	Actionable bool
}

// Rect returns the matched region centered on the detected position.
func (d Detection) Rect() image.Rectangle {
	tl := image.Pt(d.Position.X-d.Width/2, d.Position.Y-d.Height/2)
	return image.Rectangle{Min: tl, Max: tl.Add(image.Pt(d.Width, d.Height))}
}

// Engine holds the pre-processed templates and searches frames with them.
type Engine struct {
	templates []Template
	corr      Correlator
	threshold float64
}

// NewEngine prepares one template per scale. Validation errors surface here so Detect never
// sees a degenerate template.
func NewEngine(src image.Image, scales []float64, corr Correlator, threshold float64) (*Engine, error) {
	if corr == nil {
		return nil, fmt.Errorf("detect: nil correlator")
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("detect: no scales")
	}
	templates, err := PrepareTemplates(src, scales)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: templates, corr: corr, threshold: threshold}, nil
}

// Templates returns the prepared variants in evaluation order.
func (e *Engine) Templates() []Template {
	return e.templates
}

// Threshold returns the detection threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Detect runs every scale concurrently and reduces the candidates to the best one.
func (e *Engine) Detect(f types.Frame) (Detection, error) {
	img := GrayFrame(f)

	candidates := make([]Candidate, len(e.templates))
	errs := make([]error, len(e.templates))

	var wg sync.WaitGroup
	wg.Add(len(e.templates))
	for i := range e.templates {
		go func(i int) {
			defer wg.Done()
			candidates[i], errs[i] = e.searchScale(img, e.templates[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return Detection{}, fmt.Errorf("scale %.3f: %w", e.templates[i].Scale, err)
		}
	}

	best, ok := Reduce(candidates)
	if !ok {
		return Detection{}, nil
	}
	return Detection{
		DetectionResult: types.DetectionResult{
			Scale:      best.Scale,
			Position:   best.Position,
			Confidence: best.Score,
		},
		Width:      best.Width,
		Height:     best.Height,
		Actionable: Actionable(best.Score, e.threshold),
	}, nil
}

func (e *Engine) searchScale(img *mat.Dense, t Template) (Candidate, error) {
	ir, ic := img.Dims()
	tr, tc := t.Data.Dims()
	if tr > ir || tc > ic {
		return Candidate{Scale: t.Scale}, nil
	}

	valid, err := e.corr.Correlate(img, t.Data)
	if err != nil {
		return Candidate{}, err
	}
	vr, vc := valid.Dims()
	if vr != ir-tr+1 || vc != ic-tc+1 {
		return Candidate{}, fmt.Errorf("correlator returned %dx%d map, want %dx%d", vc, vr, ic-tc+1, ir-tr+1)
	}

	score, pos := MaxLoc(SameSize(valid, ir, ic, tr, tc, 0))
	return Candidate{
		Scale:    t.Scale,
		Position: pos,
		Score:    score,
		Width:    tc,
		Height:   tr,
		Valid:    true,
	}, nil
}

// SameSize embeds a valid correlation map into a rows x cols map, offset by half the template so
// each score sits at the center of its window. Cells without a score hold background.
func SameSize(valid *mat.Dense, rows, cols, tmplRows, tmplCols int, background float64) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	if background != 0 {
		raw := out.RawMatrix().Data
		for i := range raw {
			raw[i] = background
		}
	}
	vr, vc := valid.Dims()
	oy, ox := tmplRows/2, tmplCols/2
	out.Slice(oy, oy+vr, ox, ox+vc).(*mat.Dense).Copy(valid)
	return out
}

// MaxLoc returns the largest value and its position, scanning rows top to bottom.
// The first occurrence wins on ties.
func MaxLoc(m *mat.Dense) (float64, types.Point) {
	r, c := m.Dims()
	best := m.At(0, 0)
	var pos types.Point
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			if v := m.At(y, x); v > best {
				best = v
				pos = types.Point{X: x, Y: y}
			}
		}
	}
	return best, pos
}

// Reduce picks the candidate with the highest score. Candidates are compared in slice order
// and only a strictly greater score replaces the current best, so ties keep the earliest scale.
func Reduce(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if !c.Valid {
			continue
		}
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}
	return best, found
}

// Actionable reports whether a score clears the threshold. A score equal to the threshold is
// not actionable.
func Actionable(score, threshold float64) bool {
	return score > threshold
}
