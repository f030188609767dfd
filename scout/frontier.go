package scout

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// mark is the per-cell state of the two nested searches in Detect.
type mark uint8

const (
	unvisited mark = iota
	mapOpen
	mapClosed
	frontierOpen
	frontierClosed
)

func (m mark) String() string {
	switch m {
	case unvisited:
		return "unvisited"
	case mapOpen:
		return "map-open"
	case mapClosed:
		return "map-closed"
	case frontierOpen:
		return "frontier-open"
	case frontierClosed:
		return "frontier-closed"
	default:
		return fmt.Sprintf("mark(%d)", uint8(m))
	}
}

// Frontier is a connected set of unknown cells bordering open space.
type Frontier struct {
	Cells  []Cell `json:"cells"`
	Median Cell   `json:"median"` // per-axis median, may lie inside open space
	Target Cell   `json:"target"` // frontier cell nearest the median
}

// Size returns the number of cells in the frontier
func (f Frontier) Size() int {
	return len(f.Cells)
}

// FrontierDetector finds frontiers with Wavefront Frontier Detection: an outer
// breadth-first search over known space which, on meeting a frontier point,
// runs an inner search that collects the whole connected frontier.
type FrontierDetector struct {
	grid *OccupancyGrid
	cfg  FrontierConfig

	marks []mark
	outer []Cell
	inner []Cell
}

// NewFrontierDetector creates a detector reading from grid
func NewFrontierDetector(grid *OccupancyGrid, cfg FrontierConfig) *FrontierDetector {
	rows, cols := grid.Size()
	return &FrontierDetector{
		grid:  grid,
		cfg:   cfg,
		marks: make([]mark, rows*cols),
		outer: make([]Cell, 0, 256),
		inner: make([]Cell, 0, 64),
	}
}

func (d *FrontierDetector) isOpen(c Cell) bool {
	return d.grid.At(c) < d.cfg.UnknownLower
}

func (d *FrontierDetector) isUnknown(c Cell) bool {
	p := d.grid.At(c)
	return p >= d.cfg.UnknownLower && p < d.cfg.UnknownUpper
}

func (d *FrontierDetector) hasOpenNeighbour(c Cell) bool {
	for _, off := range neighbourOffsets {
		n := c.Add(off[0], off[1])
		if d.grid.InBounds(n) && d.isOpen(n) {
			return true
		}
	}
	return false
}

// isFrontierPoint reports whether c is an unknown cell with an open 4-neighbour
func (d *FrontierDetector) isFrontierPoint(c Cell) bool {
	return d.isUnknown(c) && d.hasOpenNeighbour(c)
}

func (d *FrontierDetector) markOf(c Cell) mark {
	return d.marks[d.grid.index(c)]
}

func (d *FrontierDetector) setMark(c Cell, m mark) {
	d.marks[d.grid.index(c)] = m
}

// DetectFromPose runs Detect from the cell StartAhead cells in front of the
// robot when that cell is on the grid and open, otherwise from the robot's own
// cell. It returns the frontiers and the start cell used.
func (d *FrontierDetector) DetectFromPose(pose Pose) ([]Frontier, Cell, error) {
	robot, ok := d.grid.CellAt(pose.X, pose.Y)
	if !ok {
		return nil, robot, fmt.Errorf("detect at (%.2f, %.2f): %w", pose.X, pose.Y, ErrRobotOutOfBounds)
	}

	d.grid.mu.RLock()
	start := robot
	if d.cfg.StartAhead > 0 {
		ahead := d.grid.CellSize() * float64(d.cfg.StartAhead)
		if c, ok := d.grid.CellAt(pose.X+ahead*math.Cos(pose.Heading), pose.Y+ahead*math.Sin(pose.Heading)); ok && d.isOpen(c) {
			start = c
		}
	}
	d.grid.mu.RUnlock()

	frontiers, err := d.Detect(start)
	return frontiers, start, err
}

// Detect returns the frontiers reachable from start that have at least
// MinSize cells, ordered by squared distance of their median from start.
// An empty result means the map is explored or enclosed.
func (d *FrontierDetector) Detect(start Cell) ([]Frontier, error) {
	if !d.grid.InBounds(start) {
		return nil, fmt.Errorf("detect from %s: %w", start, ErrOutOfBounds)
	}

	d.grid.mu.RLock()
	defer d.grid.mu.RUnlock()

	clear(d.marks)
	var found []Frontier

	d.outer = append(d.outer[:0], start)
	d.setMark(start, mapOpen)
	for head := 0; head < len(d.outer); head++ {
		p := d.outer[head]
		if d.markOf(p) == mapClosed {
			continue
		}

		if d.isFrontierPoint(p) {
			found = append(found, d.collect(p))
			continue
		}

		// only known open space (and the seed) propagates the search
		if p == start || d.isOpen(p) {
			for _, off := range neighbourOffsets {
				v := p.Add(off[0], off[1])
				if !d.grid.InBounds(v) {
					continue
				}
				switch d.markOf(v) {
				case mapOpen, mapClosed:
					continue
				case unvisited, frontierOpen, frontierClosed:
				}
				if d.hasOpenNeighbour(v) {
					d.setMark(v, mapOpen)
					d.outer = append(d.outer, v)
				}
			}
		}
		d.setMark(p, mapClosed)
	}

	return d.postProcess(found, start), nil
}

// ringOffsets lists the 8-connected neighbours; frontier points touching at a
// corner belong to the same frontier.
var ringOffsets = [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

// collect flood-fills the frontier containing seed and marks it map-closed
func (d *FrontierDetector) collect(seed Cell) Frontier {
	var cells []Cell
	d.inner = append(d.inner[:0], seed)
	d.setMark(seed, frontierOpen)
	for head := 0; head < len(d.inner); head++ {
		q := d.inner[head]
		switch d.markOf(q) {
		case mapClosed, frontierClosed:
			continue
		case unvisited, mapOpen, frontierOpen:
		}
		if d.isFrontierPoint(q) {
			cells = append(cells, q)
			for _, off := range ringOffsets {
				w := q.Add(off[0], off[1])
				if !d.grid.InBounds(w) {
					continue
				}
				switch d.markOf(w) {
				case frontierOpen, frontierClosed, mapClosed:
					continue
				case unvisited, mapOpen:
				}
				d.setMark(w, frontierOpen)
				d.inner = append(d.inner, w)
			}
		}
		d.setMark(q, frontierClosed)
	}

	for _, c := range cells {
		d.setMark(c, mapClosed)
	}
	return Frontier{Cells: cells}
}

func (d *FrontierDetector) postProcess(found []Frontier, start Cell) []Frontier {
	out := found[:0]
	for _, f := range found {
		if f.Size() < d.cfg.MinSize {
			continue
		}
		f.Median = medianCell(f.Cells)
		if !d.grid.InBounds(f.Median) {
			continue
		}
		if !d.isOpen(f.Median) && !d.isFrontierPoint(f.Median) {
			continue
		}
		f.Target = nearestCell(f.Cells, f.Median)
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Median.DistanceSq(start) < out[j].Median.DistanceSq(start)
	})
	return out
}

// medianCell returns the per-axis median of cells
func medianCell(cells []Cell) Cell {
	rows := make([]float64, len(cells))
	cols := make([]float64, len(cells))
	for i, c := range cells {
		rows[i] = float64(c.Row)
		cols[i] = float64(c.Col)
	}
	sort.Float64s(rows)
	sort.Float64s(cols)
	return Cell{
		Row: int(stat.Quantile(0.5, stat.Empirical, rows, nil)),
		Col: int(stat.Quantile(0.5, stat.Empirical, cols, nil)),
	}
}

// nearestCell returns the first of cells closest to c
func nearestCell(cells []Cell, c Cell) Cell {
	best := cells[0]
	bestD := best.DistanceSq(c)
	for _, x := range cells[1:] {
		if d := x.DistanceSq(c); d < bestD {
			best, bestD = x, d
		}
	}
	return best
}
