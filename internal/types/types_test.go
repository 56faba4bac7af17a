package types

import "testing"

func TestCommandEncodeDecode(t *testing.T) {
	tests := []Command{
		ManualCommand(Forward),
		ManualCommand(ToggleMode),
		AutonomousCommand(Cruise),
		AutonomousCommand(AutoStop),
	}

	for _, c := range tests {
		t.Run(c.String(), func(t *testing.T) {
			got, err := DecodeCommand(c.Encode())
			if err != nil {
				t.Fatalf("DecodeCommand(%#x) failed: %v", c.Encode(), err)
			}
			if got != c {
				t.Errorf("got %v, want %v", got, c)
			}
		})
	}
}

func TestDecodeCommandRejectsGarbage(t *testing.T) {
	bad := []uint32{
		0, // zero value has no kind
		uint32(KindManual)<<24 | 200,
		uint32(KindAutonomous)<<24 | uint32(AutoStop+1),
		9 << 24,
		uint32(KindManual)<<24 | 0x0100,
	}
	for _, w := range bad {
		if _, err := DecodeCommand(w); err == nil {
			t.Errorf("DecodeCommand(%#08x) expected error", w)
		}
	}
}

func TestPadClick(t *testing.T) {
	tests := []struct {
		x, y int
		want Manual
	}{
		{10, 10, ForwardLeft},
		{100, 10, Forward},
		{239, 10, ForwardRight},
		{10, 100, RotateLeft},
		{120, 120, Stop},
		{200, 100, RotateRight},
		{10, 200, BackwardLeft},
		{100, 200, Backward},
		{200, 200, BackwardRight},
		{240, 10, NoOp},
		{10, 240, NoOp},
		{-1, 0, NoOp},
	}
	for _, tt := range tests {
		if got := PadClick(tt.x, tt.y); got != tt.want {
			t.Errorf("PadClick(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPadKey(t *testing.T) {
	if got := PadKey('w'); got != Forward {
		t.Errorf("PadKey('w') = %v", got)
	}
	if got := PadKey('C'); got != BackwardRight {
		t.Errorf("PadKey('C') = %v", got)
	}
	if got := PadKey('m'); got != ToggleMode {
		t.Errorf("PadKey('m') = %v", got)
	}
	if got := PadKey('?'); got != NoOp {
		t.Errorf("PadKey('?') = %v", got)
	}
}

func TestFrameSubIsNotContiguous(t *testing.T) {
	f := NewFrame(4, 4)
	if !f.Contiguous() {
		t.Fatal("NewFrame must be contiguous")
	}
	sub, err := f.Sub(1, 1, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Contiguous() {
		t.Error("partial-width sub-frame reported contiguous")
	}
	full, _ := f.Sub(0, 1, 4, 2)
	if !full.Contiguous() {
		t.Error("full-width sub-frame should be contiguous")
	}
	if _, err := f.Sub(3, 3, 2, 2); err == nil {
		t.Error("expected out of bounds error")
	}
}

func TestFrameCompact(t *testing.T) {
	f := NewFrame(3, 3)
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	sub, _ := f.Sub(1, 1, 2, 2)
	c := sub.Compact()
	if !c.Contiguous() {
		t.Fatal("Compact must return a contiguous frame")
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			wb, wg, wr := sub.At(x, y)
			b, g, r := c.At(x, y)
			if b != wb || g != wg || r != wr {
				t.Errorf("pixel (%d,%d) = %d,%d,%d, want %d,%d,%d", x, y, b, g, r, wb, wg, wr)
			}
		}
	}
}

func TestParseNames(t *testing.T) {
	for m := Forward; m <= ToggleMode; m++ {
		got, err := ParseManual(m.String())
		if err != nil || got != m {
			t.Errorf("ParseManual(%q) = %v, %v", m.String(), got, err)
		}
	}
	for m := Cruise; m <= AutoStop; m++ {
		got, err := ParseManeuver(m.String())
		if err != nil || got != m {
			t.Errorf("ParseManeuver(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseManual("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
