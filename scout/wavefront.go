package scout

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrNoFrontiers is returned when there is nothing to plan towards.
	ErrNoFrontiers = errors.New("no frontiers")
	// ErrUnreachable is returned when the wave never reaches a single target.
	ErrUnreachable = errors.New("target unreachable")
	// ErrNoPath is returned when none of the candidate frontiers is reachable.
	ErrNoPath = errors.New("exploration stalled: no reachable frontier")
	// ErrRobotOutOfBounds is returned when the robot pose is off the grid.
	ErrRobotOutOfBounds = errors.New("robot outside grid")
)

// Wave grid values
const (
	waveUnreached int32 = 0
	waveBlocked   int32 = -1
)

// Path is a sequence of 4-adjacent cells from the robot cell to a target.
type Path []Cell

// Validate returns an error if any step is not between 4-adjacent cells
func (p Path) Validate() error {
	for i := 1; i < len(p); i++ {
		if p[i-1].Manhattan(p[i]) != 1 {
			return fmt.Errorf("path step %d: %s -> %s is not 4-adjacent", i, p[i-1], p[i])
		}
	}
	return nil
}

// ToWorld converts the path to cell-center world points
func (p Path) ToWorld(g *OccupancyGrid) []Point {
	centers := make([]Point, len(p))
	for i, c := range p {
		centers[i] = Point{X: float64(c.Col) + 0.5, Y: float64(c.Row) + 0.5}
	}
	return TransformPoints(centers, g.WorldMatrix())
}

// Target returns the last cell of the path
func (p Path) Target() Cell {
	return p[len(p)-1]
}

// WavefrontPlanner plans grid paths with a breadth-first distance wave from
// the robot cell over open, unmasked cells.
type WavefrontPlanner struct {
	grid *OccupancyGrid
	cfg  PlannerConfig

	wave     []int32
	obstacle []bool // raw obstacles
	mask     []bool // dilated obstacles minus protected disks
	protect  []bool
	disk     [][2]int
	current  []Cell
	next     []Cell
}

// NewWavefrontPlanner creates a planner reading from grid
func NewWavefrontPlanner(grid *OccupancyGrid, cfg PlannerConfig) *WavefrontPlanner {
	rows, cols := grid.Size()
	n := rows * cols
	radius := int(math.Ceil(cfg.FootprintRadius / grid.CellSize()))
	return &WavefrontPlanner{
		grid:     grid,
		cfg:      cfg,
		wave:     make([]int32, n),
		obstacle: make([]bool, n),
		mask:     make([]bool, n),
		protect:  make([]bool, n),
		disk:     diskOffsets(radius),
		current:  make([]Cell, 0, 256),
		next:     make([]Cell, 0, 256),
	}
}

// diskOffsets returns the cell offsets within radius of the origin
func diskOffsets(radius int) [][2]int {
	var out [][2]int
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc <= radius*radius {
				out = append(out, [2]int{dr, dc})
			}
		}
	}
	return out
}

// Plan returns a path from the robot cell to the nearest reachable frontier
// target, and that frontier. Candidates are tried in order of wave distance.
func (w *WavefrontPlanner) Plan(robot Cell, frontiers []Frontier) (Path, Frontier, error) {
	if len(frontiers) == 0 {
		return nil, Frontier{}, ErrNoFrontiers
	}
	if !w.grid.InBounds(robot) {
		return nil, Frontier{}, fmt.Errorf("plan from %s: %w", robot, ErrRobotOutOfBounds)
	}

	targets := make([]Cell, 0, len(frontiers))
	for _, f := range frontiers {
		targets = append(targets, f.Target)
	}

	w.grid.mu.RLock()
	defer w.grid.mu.RUnlock()
	w.propagate(robot, targets)

	order := make([]int, len(frontiers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return w.WaveAt(targets[order[i]]) < w.WaveAt(targets[order[j]])
	})
	for _, i := range order {
		if w.WaveAt(targets[i]) <= 0 {
			continue
		}
		return w.backtrack(robot, targets[i]), frontiers[i], nil
	}
	return nil, Frontier{}, fmt.Errorf("%d candidates from %s: %w", len(frontiers), robot, ErrNoPath)
}

// PlanTo returns a path from the robot cell to a single target
func (w *WavefrontPlanner) PlanTo(robot, target Cell) (Path, error) {
	if !w.grid.InBounds(robot) {
		return nil, fmt.Errorf("plan from %s: %w", robot, ErrRobotOutOfBounds)
	}
	if !w.grid.InBounds(target) {
		return nil, fmt.Errorf("plan to %s: %w", target, ErrOutOfBounds)
	}

	w.grid.mu.RLock()
	defer w.grid.mu.RUnlock()
	w.propagate(robot, []Cell{target})
	if w.wave[w.grid.index(target)] <= 0 {
		return nil, fmt.Errorf("plan %s -> %s: %w", robot, target, ErrUnreachable)
	}
	return w.backtrack(robot, target), nil
}

// WaveAt returns the wave value of c from the last plan: 0 unreached,
// -1 blocked, otherwise the step distance from the robot cell counting it as 1.
func (w *WavefrontPlanner) WaveAt(c Cell) int32 {
	if !w.grid.InBounds(c) {
		return waveBlocked
	}
	return w.wave[w.grid.index(c)]
}

// Masked reports whether c was treated as an obstacle in the last plan
func (w *WavefrontPlanner) Masked(c Cell) bool {
	return w.grid.InBounds(c) && w.mask[w.grid.index(c)]
}

func (w *WavefrontPlanner) buildMask(robot Cell, targets []Cell) {
	rows, cols := w.grid.Size()
	clear(w.protect)
	clear(w.mask)

	stamp := func(buf []bool, c Cell) {
		for _, off := range w.disk {
			n := c.Add(off[0], off[1])
			if n.Row >= 0 && n.Row < rows && n.Col >= 0 && n.Col < cols {
				buf[w.grid.index(n)] = true
			}
		}
	}

	stamp(w.protect, robot)
	for _, t := range targets {
		if w.grid.InBounds(t) {
			stamp(w.protect, t)
		}
	}

	for i, p := range w.grid.cells {
		w.obstacle[i] = p > w.cfg.ObstacleCertainty
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cell := Cell{Row: r, Col: c}
			if w.obstacle[w.grid.index(cell)] {
				stamp(w.mask, cell)
			}
		}
	}
	for i := range w.mask {
		if w.protect[i] && !w.obstacle[i] {
			w.mask[i] = false
		}
	}
}

// propagate fills the wave grid outward from robot, one distance per round.
// Callers hold the grid read lock.
func (w *WavefrontPlanner) propagate(robot Cell, targets []Cell) {
	w.buildMask(robot, targets)
	clear(w.wave)

	w.wave[w.grid.index(robot)] = 1
	w.current = append(w.current[:0], robot)
	for dist := int32(1); len(w.current) > 0; dist++ {
		w.next = w.next[:0]
		for _, c := range w.current {
			for _, off := range neighbourOffsets {
				n := c.Add(off[0], off[1])
				if !w.grid.InBounds(n) {
					continue
				}
				i := w.grid.index(n)
				if w.wave[i] != waveUnreached {
					continue
				}
				if w.grid.cells[i] < w.cfg.OpenThreshold && !w.mask[i] {
					w.wave[i] = dist + 1
					w.next = append(w.next, n)
				} else {
					w.wave[i] = waveBlocked
				}
			}
		}
		w.current, w.next = w.next, w.current
	}
}

// backtrack walks the wave downhill from target to the robot cell.
func (w *WavefrontPlanner) backtrack(robot, target Cell) Path {
	d := w.wave[w.grid.index(target)]
	path := make(Path, d)
	path[d-1] = target
	cur := target
	for dist := d; dist > 1; dist-- {
		stepped := false
		for _, off := range neighbourOffsets {
			n := cur.Add(off[0], off[1])
			if w.grid.InBounds(n) && w.wave[w.grid.index(n)] == dist-1 {
				cur = n
				stepped = true
				break
			}
		}
		if !stepped {
			panic(fmt.Sprintf("scout: wave has no predecessor for %s at distance %d", cur, dist))
		}
		path[dist-2] = cur
	}

	if path[0] != robot {
		panic(fmt.Sprintf("scout: backtracked path starts at %s, robot is at %s", path[0], robot))
	}
	if err := path.Validate(); err != nil {
		panic("scout: " + err.Error())
	}
	return path
}
