package scout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestLineCells(t *testing.T) {
	tests := []struct {
		name string
		a, b Cell
		want []Cell
	}{
		{
			name: "single cell",
			a:    Cell{2, 2}, b: Cell{2, 2},
			want: []Cell{{2, 2}},
		},
		{
			name: "horizontal",
			a:    Cell{1, 0}, b: Cell{1, 3},
			want: []Cell{{1, 0}, {1, 1}, {1, 2}, {1, 3}},
		},
		{
			name: "vertical reversed",
			a:    Cell{3, 1}, b: Cell{0, 1},
			want: []Cell{{3, 1}, {2, 1}, {1, 1}, {0, 1}},
		},
		{
			name: "diagonal",
			a:    Cell{0, 0}, b: Cell{3, 3},
			want: []Cell{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
		},
		{
			name: "shallow",
			a:    Cell{0, 0}, b: Cell{2, 5},
			want: []Cell{{0, 0}, {0, 1}, {1, 2}, {1, 3}, {2, 4}, {2, 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineCells(tt.a, tt.b)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("LineCells() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTraceLine_VisitsEachCellOnceNearToFar(t *testing.T) {
	a, b := Cell{-4, 7}, Cell{13, -9}
	seen := make(map[Cell]bool)
	prev := a
	first := true
	TraceLine(a, b, func(c Cell) bool {
		assert.False(t, seen[c], "cell %s visited twice", c)
		seen[c] = true
		if !first {
			// 8-connected steps, never moving away from b
			assert.LessOrEqual(t, absInt(c.Row-prev.Row), 1)
			assert.LessOrEqual(t, absInt(c.Col-prev.Col), 1)
			assert.Less(t, c.DistanceSq(b), prev.DistanceSq(b))
		}
		first = false
		prev = c
		return true
	})
	assert.Equal(t, b, prev)
}

func TestTraceLine_StopsEarly(t *testing.T) {
	n := 0
	TraceLine(Cell{0, 0}, Cell{0, 10}, func(Cell) bool {
		n++
		return n < 3
	})
	assert.Equal(t, 3, n)
}
