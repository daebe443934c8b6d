package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is an opaque key under which a canonical entry set may vary.
// The core never interprets it.
type Location string

// String returns the location key.
func (l Location) String() string { return string(l) }

// BlockPos is the integer coordinate form of a location, rendered as
// "x,y,z".
type BlockPos struct {
	X, Y, Z int
}

// Location renders the position as a location key.
func (p BlockPos) Location() Location {
	return Location(fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z))
}

// ParseBlockPos parses a location of the form "x,y,z". Whitespace around
// components is ignored.
func ParseBlockPos(loc Location) (BlockPos, error) {
	parts := strings.Split(string(loc), ",")
	if len(parts) != 3 {
		return BlockPos{}, fmt.Errorf("%w: %q is not x,y,z", ErrInvalidLocation, loc)
	}
	var xyz [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return BlockPos{}, fmt.Errorf("%w: %q: %v", ErrInvalidLocation, loc, err)
		}
		xyz[i] = n
	}
	return BlockPos{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
