package mine_world

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ErrInvalidSize is returned when a grid size falls outside [MIN_SIZE, MAX_SIZE].
var ErrInvalidSize error = errors.New("invalid grid size")

// ErrInvalidGrid is returned when input rows do not describe a valid square grid.
var ErrInvalidGrid error = errors.New("invalid grid")

// Grid is a square map of cell kinds stored row-major in a fixed array. Grid is a
// value type: assigning it copies every cell, and == compares the full layout.
// The generated map is kept as a template; episodes and runs mutate copies.
type Grid struct {
	Size  int
	Cells [MAX_CELLS]CellKind
}

// NewGrid returns an all-rock grid of the given size.
func NewGrid(size int) (Grid, error) {
	if size < MIN_SIZE || size > MAX_SIZE {
		return Grid{}, fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidSize, size, MIN_SIZE, MAX_SIZE)
	}
	return Grid{Size: size}, nil
}

// GenerateMap draws a random map. Every cell except the spawn cell (0,0) is drawn
// independently per kindWeights; the spawn cell is always ROCK.
func GenerateMap(rng *rand.Rand, size int) (grid Grid, err error) {
	if grid, err = NewGrid(size); err != nil {
		return
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x == 0 && y == 0 {
				continue
			}
			grid.Set(x, y, drawKind(rng))
		}
	}
	return
}

func drawKind(rng *rand.Rand) CellKind {
	r := rng.Float64()
	cum := 0.0
	for kind, w := range kindWeights {
		cum += w
		if r < cum {
			return CellKind(kind)
		}
	}
	// Float rounding on the cumulative sum; the last kind absorbs it.
	return CellKind(NUM_KINDS - 1)
}

// FromRows builds a grid from rows indexed [y][x].
func FromRows(rows [][]CellKind) (grid Grid, err error) {
	if grid, err = NewGrid(len(rows)); err != nil {
		return grid, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
	}

	for y, row := range rows {
		if len(row) != grid.Size {
			return Grid{}, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidGrid, y, len(row), grid.Size)
		}
		for x, kind := range row {
			if int(kind) >= NUM_KINDS {
				return Grid{}, fmt.Errorf("%w: unknown cell kind %d at (%d,%d)", ErrInvalidGrid, kind, x, y)
			}
			grid.Set(x, y, kind)
		}
	}
	return
}

// ParseGrid builds a grid from text rows using the letters of kindLetters,
// e.g. "..i" is rock, rock, iron. Whitespace inside a row is ignored.
func ParseGrid(lines []string) (Grid, error) {
	rows := make([][]CellKind, 0, len(lines))
	for y, line := range lines {
		row := []CellKind{}
		for _, r := range strings.Join(strings.Fields(line), "") {
			kind, ok := kindOf(r)
			if !ok {
				return Grid{}, fmt.Errorf("%w: unknown cell %q in row %d", ErrInvalidGrid, r, y)
			}
			row = append(row, kind)
		}
		rows = append(rows, row)
	}
	return FromRows(rows)
}

func kindOf(r rune) (CellKind, bool) {
	for kind, letter := range kindLetters {
		if letter == r {
			return CellKind(kind), true
		}
	}
	return ROCK, false
}

// InBounds reports whether (x, y) lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Size && y >= 0 && y < g.Size
}

// At returns the kind at (x, y). The caller must check bounds.
func (g *Grid) At(x, y int) CellKind {
	return g.Cells[y*g.Size+x]
}

// Set sets the kind at (x, y). The caller must check bounds.
func (g *Grid) Set(x, y int, kind CellKind) {
	g.Cells[y*g.Size+x] = kind
}

// Resources returns the number of cells that still hold a resource.
func (g *Grid) Resources() (n int) {
	for i := 0; i < g.Size*g.Size; i++ {
		if g.Cells[i].IsResource() {
			n++
		}
	}
	return
}

// Rows returns the grid as freshly allocated [y][x] rows.
func (g *Grid) Rows() [][]CellKind {
	rows := make([][]CellKind, g.Size)
	for y := range rows {
		rows[y] = make([]CellKind, g.Size)
		copy(rows[y], g.Cells[y*g.Size:(y+1)*g.Size])
	}
	return rows
}

// Lines is the inverse of ParseGrid.
func (g *Grid) Lines() []string {
	lines := make([]string, g.Size)
	for y := 0; y < g.Size; y++ {
		var sb strings.Builder
		for x := 0; x < g.Size; x++ {
			sb.WriteRune(kindLetters[g.At(x, y)])
		}
		lines[y] = sb.String()
	}
	return lines
}
