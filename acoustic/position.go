package acoustic

import "fmt"

// Position is where a unit sits inside a word.
type Position int

const (
	Undefined Position = iota
	Begin
	End
	Single
	Internal
)

// Positions lists every position.
var Positions = []Position{Undefined, Begin, End, Single, Internal}

func (p Position) String() string {
	switch p {
	case Undefined:
		return "undefined"
	case Begin:
		return "begin"
	case End:
		return "end"
	case Single:
		return "single"
	case Internal:
		return "internal"
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

// ParsePosition parses the output of Position.String. The single letter
// codes b, e, s, i and - are accepted too.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "undefined", "-":
		return Undefined, nil
	case "begin", "b":
		return Begin, nil
	case "end", "e":
		return End, nil
	case "single", "s":
		return Single, nil
	case "internal", "i":
		return Internal, nil
	}
	return Undefined, fmt.Errorf("acoustic: unknown position %q", s)
}

// PositionOf returns the position of unit i in a word of n units.
func PositionOf(i, n int) Position {
	switch {
	case n == 1:
		return Single
	case i == 0:
		return Begin
	case i == n-1:
		return End
	}
	return Internal
}
