package link

import (
	"bufio"
	"context"
	"io"
	"sync"
	"unicode"

	"github.com/andresmejia3/roverlink/internal/types"
)

// InputSource is the operator's manual input. Poll returns the held direction and whether a
// mode toggle was requested since the previous Poll.
type InputSource interface {
	Poll() (types.Manual, bool)
}

// Pad holds the latest pad command. The direction is held until another one replaces it; a
// toggle is delivered once.
type Pad struct {
	mu      sync.Mutex
	current types.Manual
	toggle  bool
}

func NewPad() *Pad {
	return &Pad{current: types.Stop}
}

func (p *Pad) Press(m types.Manual) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m == types.ToggleMode {
		p.toggle = true
		return
	}
	p.current = m
}

// Click presses the button under pixel (x, y) of the pad.
func (p *Pad) Click(x, y int) {
	p.Press(types.PadClick(x, y))
}

func (p *Pad) Poll() (types.Manual, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.toggle
	p.toggle = false
	return p.current, t
}

// ReadKeys presses the pad key of every non-space rune read from r until EOF or ctx is done.
func (p *Pad) ReadKeys(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for ctx.Err() == nil {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if unicode.IsSpace(c) {
			continue
		}
		p.Press(types.PadKey(c))
	}
	return nil
}
