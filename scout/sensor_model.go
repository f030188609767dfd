package scout

import (
	"fmt"
	"math"
)

type evidence uint8

const (
	noEvidence evidence = iota
	emptyEvidence
	occupiedEvidence
)

// SensorModel is the inverse laser model. It turns one pose plus one scan
// into per-cell occupancy probabilities and fuses them into the grid.
//
// A SensorModel is the grid's only writer and is not safe for concurrent use.
type SensorModel struct {
	grid *OccupancyGrid
	cfg  SensorConfig

	halfWidth float64

	// per-scan buffers, sized to the grid once
	measurement []float64
	mask        []bool
	kind        []evidence
	touched     []int
}

// NewSensorModel creates a sensor model writing into grid
func NewSensorModel(grid *OccupancyGrid, cfg SensorConfig) *SensorModel {
	rows, cols := grid.Size()
	n := rows * cols
	return &SensorModel{
		grid:        grid,
		cfg:         cfg,
		halfWidth:   cfg.BeamHalfWidth(),
		measurement: make([]float64, n),
		mask:        make([]bool, n),
		kind:        make([]evidence, n),
		touched:     make([]int, 0, 1024),
	}
}

// Update casts every beam of scan from pose and applies the result to the
// grid in a single bulk update. It returns the number of cells updated.
func (m *SensorModel) Update(pose Pose, scan Scan) (int, error) {
	if err := scan.Validate(); err != nil {
		return 0, fmt.Errorf("sensor update: %w", err)
	}
	origin, ok := m.grid.CellAt(pose.X, pose.Y)
	if !ok {
		return 0, fmt.Errorf("sensor update at (%.2f, %.2f): %w", pose.X, pose.Y, ErrRobotOutOfBounds)
	}

	m.reset()
	for i, d := range scan.Distances {
		m.castBeam(pose, origin, WrapAngle(pose.Heading+scan.Angles[i]), d)
	}
	if len(m.touched) == 0 {
		return 0, nil
	}

	if err := m.grid.BulkUpdate(m.measurement, m.mask); err != nil {
		return 0, err
	}
	return len(m.touched), nil
}

func (m *SensorModel) reset() {
	for _, i := range m.touched {
		m.mask[i] = false
		m.kind[i] = noEvidence
		m.measurement[i] = 0
	}
	m.touched = m.touched[:0]
}

func (m *SensorModel) castBeam(pose Pose, origin Cell, angle, distance float64) {
	maxRange := m.cfg.BeamMaxRange
	depth := m.cfg.ObstacleDepth

	hit := distance < maxRange && distance >= 0
	if distance < 0 || distance > maxRange {
		distance = maxRange
	}
	reach := math.Min(distance+depth, maxRange)
	if !hit {
		reach = maxRange
	}

	ex := pose.X + reach*math.Cos(angle)
	ey := pose.Y + reach*math.Sin(angle)
	row, col := m.grid.WorldToGrid(ex, ey)
	end := Cell{Row: int(math.Floor(row)), Col: int(math.Floor(col))}

	cellSize := m.grid.CellSize()
	TraceLine(origin, end, func(c Cell) bool {
		if !m.grid.InBounds(c) {
			return true
		}
		center := m.grid.CellCenter(c)
		dx := center.X - pose.X
		dy := center.Y - pose.Y
		r := math.Hypot(dx, dy)
		if r > maxRange {
			return false
		}

		offset := 0.0
		if c != origin {
			// angle between the beam and the nearest edge of the cell footprint
			footprint := math.Atan2(cellSize*math.Sqrt2/2, r)
			offset = math.Max(0, math.Abs(WrapAngle(math.Atan2(dy, dx)-angle))-footprint)
		}
		if offset > m.halfWidth {
			return true
		}

		distTerm := (maxRange - r) / maxRange
		angTerm := (m.halfWidth - offset) / m.halfWidth
		avg := (distTerm + angTerm) / 2

		switch {
		case hit && math.Abs(r-distance) < depth:
			m.record(c, occupiedEvidence, math.Max(0.5, m.clamp(avg*m.cfg.ProbMax)))
		case (hit && r < distance-depth) || (!hit && r < distance):
			m.record(c, emptyEvidence, math.Min(0.5, m.clamp(1-avg*m.cfg.ProbMax)))
		}
		return true
	})
}

// record keeps at most one measurement per cell and scan. Occupied evidence
// overrides empty evidence; within a class the more decisive value wins.
func (m *SensorModel) record(c Cell, kind evidence, p float64) {
	i := m.grid.index(c)
	switch m.kind[i] {
	case noEvidence:
		m.touched = append(m.touched, i)
	case emptyEvidence:
		if kind == emptyEvidence && p >= m.measurement[i] {
			return
		}
	case occupiedEvidence:
		if kind == emptyEvidence || p <= m.measurement[i] {
			return
		}
	}
	m.kind[i] = kind
	m.mask[i] = true
	m.measurement[i] = p
}

func (m *SensorModel) clamp(p float64) float64 {
	lo := 1 - m.cfg.ProbMax
	return math.Max(lo, math.Min(m.cfg.ProbMax, p))
}
