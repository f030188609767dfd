package scout

import (
	"slices"

	"github.com/paulmach/orb/geojson"
)

// chainOffsets lists the 8-connected steps with cardinal ones first, so
// traced chains prefer straight runs.
var chainOffsets = [8][2]int{
	{0, 1}, {0, -1}, {1, 0}, {-1, 0},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// TraceWalls extracts wall centerlines from a snapshot. Cells at or above
// threshold are walls; each 8-connected group of them is walked through cell
// centers from an end cell, and branches that the walk skips become chains of
// their own. Chains are simplified with tolerance (world units). Single-cell
// groups carry no direction and are dropped.
func TraceWalls(snap *GridSnapshot, threshold, tolerance float64) [][]Point {
	isWall := func(r, c int) bool {
		return r >= 0 && r < snap.Rows && c >= 0 && c < snap.Cols && snap.Cells[r*snap.Cols+c] >= threshold
	}

	visited := make([]bool, len(snap.Cells))
	var walls [][]Point
	for r := 0; r < snap.Rows; r++ {
		for c := 0; c < snap.Cols; c++ {
			if !isWall(r, c) || visited[r*snap.Cols+c] {
				continue
			}
			component := collectComponent(Cell{Row: r, Col: c}, isWall, visited, snap.Cols)
			if len(component) < 2 {
				continue
			}
			for _, chain := range orderChains(component) {
				if len(chain) < 2 {
					continue
				}
				points := make([]Point, len(chain))
				for i, cell := range chain {
					points[i] = snap.CellCenter(cell)
				}
				walls = append(walls, SimplifyWaypoints(points, tolerance))
			}
		}
	}
	return walls
}

// collectComponent gathers the 8-connected wall cells reachable from start.
func collectComponent(start Cell, isWall func(r, c int) bool, visited []bool, cols int) []Cell {
	visited[start.Row*cols+start.Col] = true
	queue := []Cell{start}
	var component []Cell
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		component = append(component, cur)
		for _, n := range chainOffsets {
			r, c := cur.Row+n[0], cur.Col+n[1]
			if isWall(r, c) && !visited[r*cols+c] {
				visited[r*cols+c] = true
				queue = append(queue, Cell{Row: r, Col: c})
			}
		}
	}
	return component
}

// orderChains walks a component into ordered chains. The first chain starts at
// a cell with at most one neighbour when there is one.
func orderChains(component []Cell) [][]Cell {
	in := make(map[Cell]bool, len(component))
	for _, c := range component {
		in[c] = true
	}
	degree := func(c Cell) int {
		d := 0
		for _, n := range chainOffsets {
			if in[c.Add(n[0], n[1])] {
				d++
			}
		}
		return d
	}

	start := component[0]
	for _, c := range component {
		if degree(c) <= 1 {
			start = c
			break
		}
	}

	walked := make(map[Cell]bool, len(component))
	walk := func(from Cell) []Cell {
		chain := []Cell{from}
		walked[from] = true
		cur := from
		for {
			found := false
			for _, n := range chainOffsets {
				next := cur.Add(n[0], n[1])
				if in[next] && !walked[next] {
					walked[next] = true
					chain = append(chain, next)
					cur = next
					found = true
					break
				}
			}
			if !found {
				return chain
			}
		}
	}

	chains := [][]Cell{walk(start)}
	for _, c := range component {
		if walked[c] {
			continue
		}
		branch := walk(c)
		// anchor the branch to the wall it leaves from
		for _, n := range chainOffsets {
			prev := c.Add(n[0], n[1])
			if in[prev] && !slices.Contains(branch, prev) {
				branch = append([]Cell{prev}, branch...)
				break
			}
		}
		chains = append(chains, branch)
	}
	return chains
}

// WallsGeoJSON exports traced walls as LineString features
func WallsGeoJSON(walls [][]Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, w := range walls {
		feat := geojson.NewFeature(LineString(w))
		feat.Properties["layer"] = "wall"
		feat.Properties["length"] = PathLength(w)
		fc.Append(feat)
	}
	return fc
}
