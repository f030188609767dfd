package scout

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGrid returns a grid anchored at the origin with unit cells
func newTestGrid(rows, cols int) *OccupancyGrid {
	return NewOccupancyGridSize(0, 0, 1, rows, cols)
}

// fillRect sets every cell in the inclusive rectangle to p
func fillRect(t *testing.T, g *OccupancyGrid, r0, c0, r1, c1 int, p float64) {
	t.Helper()
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			require.NoError(t, g.Set(r, c, p))
		}
	}
}

func TestNewOccupancyGrid(t *testing.T) {
	g := NewOccupancyGrid(GridConfig{CellSize: 0.5, XMin: -2, YMin: -1, XMax: 3, YMax: 1.2})
	rows, cols := g.Size()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 10, cols)
	assert.Equal(t, Point{X: -2, Y: -1}, g.Anchor())
	assert.Equal(t, uint64(0), g.Generation())

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p, err := g.Get(r, c)
			require.NoError(t, err)
			assert.Equal(t, UnknownProbability, p)
		}
	}
}

func TestNewOccupancyGridSize_InvalidPanics(t *testing.T) {
	assert.Panics(t, func() { NewOccupancyGridSize(0, 0, 1, 0, 5) })
	assert.Panics(t, func() { NewOccupancyGridSize(0, 0, 0, 5, 5) })
}

func TestWorldToGrid_RoundTrip(t *testing.T) {
	g := NewOccupancyGridSize(-7.25, 3.5, 0.3, 40, 25)
	rows, cols := g.Size()

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := g.GridToWorld(float64(r)+0.5, float64(c)+0.5)
			gr, gc := g.WorldToGrid(x, y)
			assert.InDelta(t, float64(r)+0.5, gr, 1e-9)
			assert.InDelta(t, float64(c)+0.5, gc, 1e-9)

			cell, ok := g.CellAt(x, y)
			require.True(t, ok)
			assert.Equal(t, Cell{Row: r, Col: c}, cell)
		}
	}
}

func TestWorldToGrid_Convention(t *testing.T) {
	g := NewOccupancyGridSize(-10, -20, 2, 30, 30)

	row, col := g.WorldToGrid(4, 0)
	assert.InDelta(t, 10.0, row, 1e-12, "row follows y")
	assert.InDelta(t, 7.0, col, 1e-12, "col follows x")

	x, y := g.GridToWorld(10, 7)
	assert.InDelta(t, 4.0, x, 1e-12)
	assert.InDelta(t, 0.0, y, 1e-12)

	assert.Equal(t, Point{X: 5, Y: 1}, g.CellCenter(Cell{Row: 10, Col: 7}))
}

func TestGridMatrix_MatchesWorldToGrid(t *testing.T) {
	g := NewOccupancyGridSize(-3, 4, 0.25, 10, 10)
	m := g.GridMatrix()

	p := TransformPoint(Point{X: -1.5, Y: 5}, m)
	row, col := g.WorldToGrid(-1.5, 5)
	assert.InDelta(t, col, p.X, 1e-12)
	assert.InDelta(t, row, p.Y, 1e-12)

	back := TransformPoint(p, InvertMatrix(m))
	assert.InDelta(t, -1.5, back.X, 1e-12)
	assert.InDelta(t, 5.0, back.Y, 1e-12)
}

func TestWorldMatrix_InvertsGridMatrix(t *testing.T) {
	g := NewOccupancyGridSize(-7.25, 3.5, 0.3, 40, 25)
	assert.Equal(t, InvertMatrix(g.GridMatrix()), g.WorldMatrix())

	x, y := g.GridToWorld(12.5, 3.5)
	p := TransformPoint(Point{X: 3.5, Y: 12.5}, g.WorldMatrix())
	assert.Equal(t, p, Point{X: x, Y: y})
	assert.InDelta(t, 3.5*0.3-7.25, x, 1e-12)
	assert.InDelta(t, 12.5*0.3+3.5, y, 1e-12)

	pts := Path{{12, 3}, {12, 4}}.ToWorld(g)
	assert.InDelta(t, x, pts[0].X, 1e-12)
	assert.InDelta(t, y, pts[0].Y, 1e-12)
	assert.InDelta(t, x+0.3, pts[1].X, 1e-12)
}

func TestCellAt_OutOfBounds(t *testing.T) {
	g := newTestGrid(4, 4)

	tests := []struct {
		name string
		x, y float64
	}{
		{"left", -0.1, 1},
		{"below", 1, -0.01},
		{"right edge", 4, 1},
		{"top edge", 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.CellAt(tt.x, tt.y)
			assert.False(t, ok)
		})
	}
}

func TestGet_OutOfBounds(t *testing.T) {
	g := newTestGrid(3, 3)

	for _, idx := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 3}} {
		_, err := g.Get(idx[0], idx[1])
		assert.True(t, errors.Is(err, ErrOutOfBounds), "Get(%d,%d)", idx[0], idx[1])
	}
	assert.ErrorIs(t, g.BayesianUpdate(5, 5, 0.7), ErrOutOfBounds)
	assert.ErrorIs(t, g.Set(0, 9, 0.7), ErrOutOfBounds)
}

func TestBayesianUpdate_Formula(t *testing.T) {
	g := newTestGrid(1, 1)
	require.NoError(t, g.Set(0, 0, 0.3))
	require.NoError(t, g.BayesianUpdate(0, 0, 0.8))

	want := (0.8 * 0.3) / (0.8*0.3 + 0.2*0.7)
	got, err := g.Get(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestBayesianUpdate_UnknownPriorTakesMeasurement(t *testing.T) {
	g := newTestGrid(1, 1)
	require.NoError(t, g.BayesianUpdate(0, 0, 0.9))
	got, _ := g.Get(0, 0)
	assert.InDelta(t, 0.9, got, 1e-12)
}

func TestBayesianUpdate_Monotonic(t *testing.T) {
	tests := []struct {
		name       string
		p          float64
		increasing bool
	}{
		{"strong occupied", 0.98, true},
		{"weak occupied", 0.51, true},
		{"weak empty", 0.49, false},
		{"strong empty", 0.02, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGrid(1, 1)
			prev := UnknownProbability
			// eight fusions of 0.98 stay clear of float64 saturation
			for i := 0; i < 8; i++ {
				require.NoError(t, g.BayesianUpdate(0, 0, tt.p))
				cur, _ := g.Get(0, 0)
				if tt.increasing {
					assert.GreaterOrEqual(t, cur, prev)
				} else {
					assert.LessOrEqual(t, cur, prev)
				}
				assert.Greater(t, cur, 0.0)
				assert.Less(t, cur, 1.0)
				prev = cur
			}
		})
	}
}

func TestBayesianUpdate_Recovers(t *testing.T) {
	g := newTestGrid(1, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.BayesianUpdate(0, 0, 0.98))
	}
	high, _ := g.Get(0, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, g.BayesianUpdate(0, 0, 0.02))
	}
	low, _ := g.Get(0, 0)
	assert.Greater(t, high, 0.99)
	assert.Less(t, low, 0.5)
}

func TestBulkUpdate_UsesLivePrior(t *testing.T) {
	g := newTestGrid(2, 2)
	require.NoError(t, g.Set(0, 0, 0.2))
	require.NoError(t, g.Set(1, 1, 0.9))

	measurement := []float64{0.7, 0.7, 0.3, 0.3}
	mask := []bool{true, false, false, true}
	require.NoError(t, g.BulkUpdate(measurement, mask))

	want00 := bayes(0.2, 0.7)
	want11 := bayes(0.9, 0.3)

	got, _ := g.Get(0, 0)
	assert.InDelta(t, want00, got, 1e-12)
	got, _ = g.Get(1, 1)
	assert.InDelta(t, want11, got, 1e-12)

	// unmasked cells are untouched
	got, _ = g.Get(0, 1)
	assert.Equal(t, UnknownProbability, got)
	got, _ = g.Get(1, 0)
	assert.Equal(t, UnknownProbability, got)
}

func TestBulkUpdate_SizeMismatch(t *testing.T) {
	g := newTestGrid(2, 2)
	err := g.BulkUpdate(make([]float64, 3), make([]bool, 4))
	assert.Error(t, err)
	assert.Equal(t, uint64(0), g.Generation())
}

func TestInvalidProbabilityPanics(t *testing.T) {
	g := newTestGrid(1, 1)
	assert.Panics(t, func() { _ = g.Set(0, 0, 1.5) })
	assert.Panics(t, func() { _ = g.Set(0, 0, math.NaN()) })
	assert.Panics(t, func() { _ = g.BayesianUpdate(0, 0, -0.5) })
}

func TestGeneration_BumpsOnMutation(t *testing.T) {
	g := newTestGrid(2, 2)
	require.NoError(t, g.BayesianUpdate(0, 0, 0.6))
	require.NoError(t, g.BulkUpdate(make([]float64, 4), make([]bool, 4)))
	g.Fill(0.4)
	assert.Equal(t, uint64(3), g.Generation())

	_, _ = g.Get(0, 0)
	assert.Equal(t, uint64(3), g.Generation(), "reads do not bump")
}

func TestSnapshot_IsFrozen(t *testing.T) {
	g := newTestGrid(3, 4)
	require.NoError(t, g.Set(1, 2, 0.9))

	snap := g.Snapshot()
	require.NoError(t, g.Set(1, 2, 0.1))

	assert.Equal(t, 0.9, snap.At(Cell{Row: 1, Col: 2}))
	assert.Equal(t, 3, snap.Rows)
	assert.Equal(t, 4, snap.Cols)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.True(t, snap.InBounds(Cell{Row: 2, Col: 3}))
	assert.False(t, snap.InBounds(Cell{Row: 3, Col: 0}))
	assert.Equal(t, g.CellCenter(Cell{Row: 2, Col: 1}), snap.CellCenter(Cell{Row: 2, Col: 1}))

	minX, minY, maxX, maxY := snap.Bounds()
	assert.Equal(t, []float64{0, 0, 4, 3}, []float64{minX, minY, maxX, maxY})
}

func TestSnapshot_ConcurrentWithWriter(t *testing.T) {
	g := newTestGrid(20, 20)
	measurement := make([]float64, 400)
	mask := make([]bool, 400)
	for i := range measurement {
		measurement[i] = 0.7
		mask[i] = true
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = g.BulkUpdate(measurement, mask)
		}
	}()

	for i := 0; i < 50; i++ {
		snap := g.Snapshot()
		// a bulk update is applied atomically, so every cell agrees
		first := snap.Cells[0]
		for _, v := range snap.Cells {
			if v != first {
				t.Fatalf("torn snapshot at generation %d", snap.Generation)
			}
		}
	}
	wg.Wait()
}
