package scout

// TraceLine walks the cells on the integer line from a to b, both inclusive,
// in order from a. Each cell is visited exactly once. Walking stops early when
// visit returns false.
func TraceLine(a, b Cell, visit func(Cell) bool) {
	dc := absInt(b.Col - a.Col)
	dr := -absInt(b.Row - a.Row)
	sc := 1
	if a.Col > b.Col {
		sc = -1
	}
	sr := 1
	if a.Row > b.Row {
		sr = -1
	}

	err := dc + dr
	c := a
	for {
		if !visit(c) {
			return
		}
		if c == b {
			return
		}
		e2 := 2 * err
		if e2 >= dr {
			err += dr
			c.Col += sc
		}
		if e2 <= dc {
			err += dc
			c.Row += sr
		}
	}
}

// LineCells returns the cells TraceLine would visit
func LineCells(a, b Cell) []Cell {
	n := absInt(b.Row-a.Row) + absInt(b.Col-a.Col) + 1
	out := make([]Cell, 0, n)
	TraceLine(a, b, func(c Cell) bool {
		out = append(out, c)
		return true
	})
	return out
}
