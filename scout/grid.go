package scout

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// UnknownProbability is the value every cell starts at.
const UnknownProbability = 0.5

// ErrOutOfBounds is returned when a (row, col) index falls outside the grid.
var ErrOutOfBounds = errors.New("cell out of bounds")

// OccupancyGrid is a 2D map of "probability this cell is occupied" values.
//
// The grid has a single writer (the sensor model) and any number of readers.
// Readers that need a consistent view across a whole computation either hold
// RLock for its duration or work on a Snapshot. Every mutation bumps the
// generation counter.
type OccupancyGrid struct {
	mu         sync.RWMutex
	cells      []float64 // row-major
	rows, cols int
	cellSize   float64
	xAnchor    float64
	yAnchor    float64
	toGrid     AffineMatrix // world (x, y) to grid (col, row)
	toWorld    AffineMatrix
	generation uint64
}

// NewOccupancyGrid creates a grid covering the configured extents with every
// cell set to unknown.
func NewOccupancyGrid(cfg GridConfig) *OccupancyGrid {
	rows, cols := cfg.Dimensions()
	return NewOccupancyGridSize(cfg.XMin, cfg.YMin, cfg.CellSize, rows, cols)
}

// NewOccupancyGridSize creates a grid with an explicit anchor and dimensions.
func NewOccupancyGridSize(xAnchor, yAnchor, cellSize float64, rows, cols int) *OccupancyGrid {
	if rows <= 0 || cols <= 0 || cellSize <= 0 {
		panic(fmt.Sprintf("scout: invalid grid geometry rows=%d cols=%d cellSize=%g", rows, cols, cellSize))
	}
	cells := make([]float64, rows*cols)
	for i := range cells {
		cells[i] = UnknownProbability
	}
	s := 1 / cellSize
	toGrid := MultiplyMatrices(Scale(s, s), Translation(-xAnchor, -yAnchor))
	return &OccupancyGrid{
		cells:    cells,
		rows:     rows,
		cols:     cols,
		cellSize: cellSize,
		xAnchor:  xAnchor,
		yAnchor:  yAnchor,
		toGrid:   toGrid,
		toWorld:  InvertMatrix(toGrid),
	}
}

// Size returns the row and column counts
func (g *OccupancyGrid) Size() (rows, cols int) {
	return g.rows, g.cols
}

// CellSize returns the world units per cell
func (g *OccupancyGrid) CellSize() float64 {
	return g.cellSize
}

// Anchor returns the world position of the grid's (0,0) corner
func (g *OccupancyGrid) Anchor() Point {
	return Point{X: g.xAnchor, Y: g.yAnchor}
}

// Generation returns the number of mutations applied so far
func (g *OccupancyGrid) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

// WorldToGrid converts a world position to fractional (row, col) grid coordinates.
func (g *OccupancyGrid) WorldToGrid(x, y float64) (row, col float64) {
	p := TransformPoint(Point{X: x, Y: y}, g.toGrid)
	return p.Y, p.X
}

// GridToWorld converts fractional (row, col) grid coordinates to a world position.
func (g *OccupancyGrid) GridToWorld(row, col float64) (x, y float64) {
	p := TransformPoint(Point{X: col, Y: row}, g.toWorld)
	return p.X, p.Y
}

// CellAt returns the cell containing a world position and whether it lies on the grid.
func (g *OccupancyGrid) CellAt(x, y float64) (Cell, bool) {
	row, col := g.WorldToGrid(x, y)
	c := Cell{Row: int(math.Floor(row)), Col: int(math.Floor(col))}
	return c, g.InBounds(c)
}

// CellCenter returns the world position of a cell's center
func (g *OccupancyGrid) CellCenter(c Cell) Point {
	x, y := g.GridToWorld(float64(c.Row)+0.5, float64(c.Col)+0.5)
	return Point{X: x, Y: y}
}

// GridMatrix returns the world to grid transform as an affine matrix mapping
// (x, y) to (col, row).
func (g *OccupancyGrid) GridMatrix() AffineMatrix {
	return g.toGrid
}

// WorldMatrix returns the inverse of GridMatrix
func (g *OccupancyGrid) WorldMatrix() AffineMatrix {
	return g.toWorld
}

// InBounds reports whether the cell lies on the grid
func (g *OccupancyGrid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.rows && c.Col >= 0 && c.Col < g.cols
}

func (g *OccupancyGrid) index(c Cell) int {
	return c.Row*g.cols + c.Col
}

// Get returns the occupancy probability of a cell, or ErrOutOfBounds.
func (g *OccupancyGrid) Get(row, col int) (float64, error) {
	c := Cell{Row: row, Col: col}
	if !g.InBounds(c) {
		return 0, fmt.Errorf("get %s on %dx%d grid: %w", c, g.rows, g.cols, ErrOutOfBounds)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(c)], nil
}

// At returns the probability of an in-bounds cell without locking or
// bounds checks. Callers hold RLock (or are the writer) and bounds-check first.
func (g *OccupancyGrid) At(c Cell) float64 {
	return g.cells[g.index(c)]
}

// Set overwrites a cell value. It is meant for seeding maps and tests; sensor
// evidence goes through BayesianUpdate.
func (g *OccupancyGrid) Set(row, col int, p float64) error {
	c := Cell{Row: row, Col: col}
	if !g.InBounds(c) {
		return fmt.Errorf("set %s on %dx%d grid: %w", c, g.rows, g.cols, ErrOutOfBounds)
	}
	mustProbability(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells[g.index(c)] = p
	g.generation++
	return nil
}

// Fill sets every cell to p
func (g *OccupancyGrid) Fill(p float64) {
	mustProbability(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i] = p
	}
	g.generation++
}

// BayesianUpdate fuses a measurement probability into one cell with recursive Bayes:
//
//	posterior = p*prior / (p*prior + (1-p)*(1-prior))
func (g *OccupancyGrid) BayesianUpdate(row, col int, pOccupied float64) error {
	c := Cell{Row: row, Col: col}
	if !g.InBounds(c) {
		return fmt.Errorf("update %s on %dx%d grid: %w", c, g.rows, g.cols, ErrOutOfBounds)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.index(c)
	g.cells[i] = bayes(g.cells[i], pOccupied)
	g.generation++
	return nil
}

// BulkUpdate applies BayesianUpdate to every cell whose mask entry is set,
// using the live grid value as prior. measurement and mask are row-major and
// must match the grid size.
func (g *OccupancyGrid) BulkUpdate(measurement []float64, mask []bool) error {
	if len(measurement) != len(g.cells) || len(mask) != len(g.cells) {
		return fmt.Errorf("bulk update: got %d measurements and %d mask entries for %d cells",
			len(measurement), len(mask), len(g.cells))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, set := range mask {
		if set {
			g.cells[i] = bayes(g.cells[i], measurement[i])
		}
	}
	g.generation++
	return nil
}

func bayes(prior, p float64) float64 {
	occupied := p * prior
	denom := occupied + (1-p)*(1-prior)
	if denom == 0 {
		// p and prior are certain and contradictory; keep the prior.
		return prior
	}
	posterior := occupied / denom
	mustProbability(posterior)
	return posterior
}

// mustProbability panics on a value outside [0,1]. Such a value can only come
// from a bug in the fusion code.
func mustProbability(p float64) {
	if !(p >= 0 && p <= 1) {
		panic(fmt.Sprintf("scout: probability %v outside [0,1]", p))
	}
}

// Snapshot returns a frozen copy of the grid for renderers and savers.
func (g *OccupancyGrid) Snapshot() *GridSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cells := make([]float64, len(g.cells))
	copy(cells, g.cells)
	return &GridSnapshot{
		Cells:      cells,
		Rows:       g.rows,
		Cols:       g.cols,
		CellSize:   g.cellSize,
		Anchor:     Point{X: g.xAnchor, Y: g.yAnchor},
		Generation: g.generation,
	}
}

// GridSnapshot is an immutable copy of the grid at one generation.
type GridSnapshot struct {
	Cells      []float64 `json:"cells"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	CellSize   float64   `json:"cellSize"`
	Anchor     Point     `json:"anchor"`
	Generation uint64    `json:"generation"`
}

// At returns the value of an in-bounds cell
func (s *GridSnapshot) At(c Cell) float64 {
	return s.Cells[c.Row*s.Cols+c.Col]
}

// InBounds reports whether the cell lies on the snapshot
func (s *GridSnapshot) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < s.Rows && c.Col >= 0 && c.Col < s.Cols
}

// CellCenter returns the world position of a cell's center
func (s *GridSnapshot) CellCenter(c Cell) Point {
	return Point{
		X: (float64(c.Col)+0.5)*s.CellSize + s.Anchor.X,
		Y: (float64(c.Row)+0.5)*s.CellSize + s.Anchor.Y,
	}
}

// Bounds returns the world extent covered by the snapshot
func (s *GridSnapshot) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = s.Anchor.X, s.Anchor.Y
	maxX = minX + float64(s.Cols)*s.CellSize
	maxY = minY + float64(s.Rows)*s.CellSize
	return
}
