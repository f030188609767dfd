package scout

import (
	"sync"
	"time"
)

// defaultTrailLength bounds the pose history kept for the live view
const defaultTrailLength = 500

// StateSummary is the JSON body of the health endpoint.
type StateSummary struct {
	SessionID  string    `json:"sessionId,omitempty"`
	Status     Status    `json:"status"`
	Cycle      int       `json:"cycle"`
	Frontiers  int       `json:"frontiers"`
	KnownCells int       `json:"knownCells"`
	TotalCells int       `json:"totalCells"`
	Coverage   float64   `json:"coverage"`
	Pose       *Pose     `json:"pose,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// StateTracker keeps the latest cycle report and a pose trail for the HTTP
// endpoints and the map saver. It is fed by Observe.
type StateTracker struct {
	mu       sync.RWMutex
	grid     *OccupancyGrid
	unknown  FrontierConfig
	last     *CycleReport
	trail    []Point
	maxTrail int
}

// NewStateTracker creates a tracker over grid. Cells inside the unknown band
// of cfg count as unexplored for coverage.
func NewStateTracker(grid *OccupancyGrid, cfg FrontierConfig) *StateTracker {
	return &StateTracker{grid: grid, unknown: cfg, maxTrail: defaultTrailLength}
}

// Observe records a cycle report. It satisfies Observer.
func (st *StateTracker) Observe(report CycleReport) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.last = &report
	st.trail = append(st.trail, report.Pose.Position())
	if len(st.trail) > st.maxTrail {
		st.trail = append(st.trail[:0], st.trail[len(st.trail)-st.maxTrail:]...)
	}
}

// LastReport returns the most recent report
func (st *StateTracker) LastReport() (CycleReport, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.last == nil {
		return CycleReport{}, false
	}
	return *st.last, true
}

// Trail returns a copy of the recent robot positions, oldest first
func (st *StateTracker) Trail() []Point {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]Point(nil), st.trail...)
}

// Snapshot returns a frozen grid copy and the overlay of the latest report.
func (st *StateTracker) Snapshot() (*GridSnapshot, MapOverlay) {
	snap := st.grid.Snapshot()
	report, ok := st.LastReport()
	if !ok {
		return snap, MapOverlay{Status: StatusIdle}
	}
	return snap, OverlayFromReport(report)
}

// Summary reports session progress and map coverage.
func (st *StateTracker) Summary() StateSummary {
	snap := st.grid.Snapshot()
	known := 0
	for _, p := range snap.Cells {
		if p < st.unknown.UnknownLower || p >= st.unknown.UnknownUpper {
			known++
		}
	}

	s := StateSummary{
		Status:     StatusIdle,
		KnownCells: known,
		TotalCells: len(snap.Cells),
	}
	if s.TotalCells > 0 {
		s.Coverage = float64(known) / float64(s.TotalCells)
	}
	if report, ok := st.LastReport(); ok {
		pose := report.Pose
		s.SessionID = report.SessionID
		s.Status = report.Status
		s.Cycle = report.Cycle
		s.Frontiers = len(report.Frontiers)
		s.Pose = &pose
		s.UpdatedAt = report.Time
	}
	return s
}
