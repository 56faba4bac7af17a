package types

// Pad geometry of the on-screen button grid drawn next to the video.
const (
	PadButtonWidth  = 80
	PadButtonHeight = 80
	PadColumns      = 3
	PadRows         = 3
)

// padLayout is indexed [col][row].
var padLayout = [PadColumns][PadRows]Manual{
	{ForwardLeft, RotateLeft, BackwardLeft},
	{Forward, Stop, Backward},
	{ForwardRight, RotateRight, BackwardRight},
}

// PadCommand maps a button cell to its command. Cells outside the grid yield NoOp.
func PadCommand(col, row int) Manual {
	if col < 0 || col >= PadColumns || row < 0 || row >= PadRows {
		return NoOp
	}
	return padLayout[col][row]
}

// PadClick maps a click at pixel (x, y) on the pad to its command.
func PadClick(x, y int) Manual {
	if x < 0 || y < 0 {
		return NoOp
	}
	return PadCommand(x/PadButtonWidth, y/PadButtonHeight)
}

// padKeys lays the keyboard over the same grid.
var padKeys = map[rune][2]int{
	'q': {0, 0}, 'w': {1, 0}, 'e': {2, 0},
	'a': {0, 1}, 's': {1, 1}, 'd': {2, 1},
	'z': {0, 2}, 'x': {1, 2}, 'c': {2, 2},
}

// PadKey maps a keyboard key to its command; 'm' toggles the navigation mode.
func PadKey(r rune) Manual {
	if r == 'm' || r == 'M' {
		return ToggleMode
	}
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	cell, ok := padKeys[r]
	if !ok {
		return NoOp
	}
	return PadCommand(cell[0], cell[1])
}
