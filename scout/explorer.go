package scout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrExplorationStalled is returned by Run when planning failed Loop.MaxStalls
// cycles in a row.
var ErrExplorationStalled = errors.New("exploration stalled")

// spinRate is the turn rate used while no path can be planned, so the laser
// sees new space before the next attempt.
const spinRate = 0.5

// RobotSource provides the robot's latest pose and laser scan.
type RobotSource interface {
	Pose(ctx context.Context) (Pose, error)
	Scan(ctx context.Context) (Scan, error)
}

// Driver sends velocity commands to the robot.
type Driver interface {
	Drive(ctx context.Context, cmd Command) error
}

// Status is the exploration state reported after each cycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusExploring Status = "exploring"
	StatusExplored  Status = "explored"
	StatusStalled   Status = "stalled"
)

// CycleReport describes one sense-plan-act cycle.
type CycleReport struct {
	SessionID  string     `json:"sessionId"`
	Cycle      int        `json:"cycle"`
	Status     Status     `json:"status"`
	Pose       Pose       `json:"pose"`
	Updated    int        `json:"updated"`
	Danger     bool       `json:"danger"`
	Replanned  bool       `json:"replanned"`
	Stalls     int        `json:"stalls"`
	Frontiers  []Frontier `json:"-"`
	Path       Path       `json:"path,omitempty"`
	Waypoints  []Point    `json:"waypoints,omitempty"`
	Command    Command    `json:"command"`
	Generation uint64     `json:"generation"`
	Time       time.Time  `json:"time"`
}

// Observer is called after every cycle with that cycle's report.
type Observer func(CycleReport)

// ExplorerOption configures an Explorer.
type ExplorerOption func(*Explorer)

// WithObserver adds an observer notified after each cycle.
func WithObserver(o Observer) ExplorerOption {
	return func(e *Explorer) {
		e.observers = append(e.observers, o)
	}
}

// WithMaxCycles stops Run after n cycles. Zero means no limit.
func WithMaxCycles(n int) ExplorerOption {
	return func(e *Explorer) {
		e.maxCycles = n
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) ExplorerOption {
	return func(e *Explorer) {
		e.sessionID = id
	}
}

// Explorer is one exploration session. It owns the grid and runs the
// synchronous cycle: sense, fuse, detect frontiers, plan, follow.
type Explorer struct {
	cfg       Config
	grid      *OccupancyGrid
	sensor    *SensorModel
	detector  *FrontierDetector
	planner   *WavefrontPlanner
	avoider   *Avoider
	follower  *PurePursuit
	source    RobotSource
	driver    Driver
	sessionID string
	observers []Observer
	maxCycles int

	replan atomic.Bool

	mu        sync.Mutex
	status    Status
	cycle     int
	stalls    int
	frontiers []Frontier
	path      Path
	target    Frontier
	last      CycleReport
}

// NewExplorer creates a session over a fresh unknown grid built from cfg.
func NewExplorer(cfg Config, source RobotSource, driver Driver, opts ...ExplorerOption) *Explorer {
	grid := NewOccupancyGrid(cfg.Grid)
	e := &Explorer{
		cfg:       cfg,
		grid:      grid,
		sensor:    NewSensorModel(grid, cfg.Sensor),
		detector:  NewFrontierDetector(grid, cfg.Frontier),
		planner:   NewWavefrontPlanner(grid, cfg.Planner),
		avoider:   NewAvoider(cfg.Safety),
		follower:  NewPurePursuit(cfg.Follower),
		source:    source,
		driver:    driver,
		sessionID: uuid.NewString(),
		status:    StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the tunables the session was built with
func (e *Explorer) Config() Config { return e.cfg }

// SessionID returns the session identifier
func (e *Explorer) SessionID() string { return e.sessionID }

// Grid returns the live occupancy grid. Readers outside the loop should use
// Grid().Snapshot().
func (e *Explorer) Grid() *OccupancyGrid { return e.grid }

// Status returns the state after the last cycle
func (e *Explorer) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Frontiers returns the frontiers from the last detection
func (e *Explorer) Frontiers() []Frontier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Frontier(nil), e.frontiers...)
}

// Path returns the active grid path
func (e *Explorer) Path() Path {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(Path(nil), e.path...)
}

// Target returns the frontier the active path leads to
func (e *Explorer) Target() Frontier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// LastReport returns the report of the most recent cycle
func (e *Explorer) LastReport() CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Waypoints returns the world points the follower has left to visit
func (e *Explorer) Waypoints() []Point {
	return e.follower.Waypoints()
}

// RequestReplan drops the active path at the start of the next cycle.
func (e *Explorer) RequestReplan() {
	e.replan.Store(true)
}

// Ingest fuses one scan taken at pose into the grid.
func (e *Explorer) Ingest(pose Pose, scan Scan) (int, error) {
	return e.sensor.Update(pose, scan)
}

// RecomputeFrontiers runs frontier detection from pose and stores the result.
func (e *Explorer) RecomputeFrontiers(pose Pose) ([]Frontier, error) {
	frontiers, _, err := e.detector.DetectFromPose(pose)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.frontiers = frontiers
	e.mu.Unlock()
	return frontiers, nil
}

// RecomputePath plans from pose to the nearest reachable stored frontier and
// hands the path to the follower.
func (e *Explorer) RecomputePath(pose Pose) (Path, error) {
	robot, ok := e.grid.CellAt(pose.X, pose.Y)
	if !ok {
		return nil, fmt.Errorf("plan at (%.2f, %.2f): %w", pose.X, pose.Y, ErrRobotOutOfBounds)
	}

	path, target, err := e.planner.Plan(robot, e.Frontiers())
	if err != nil {
		e.follower.Clear()
		e.mu.Lock()
		e.path = nil
		e.mu.Unlock()
		return nil, err
	}

	e.follower.SetPath(path.ToWorld(e.grid))
	e.mu.Lock()
	e.path = path
	e.target = target
	e.mu.Unlock()
	return path, nil
}

// Step runs one cycle. It returns ErrExplorationStalled once planning has
// failed MaxStalls times in a row; other errors come from the robot.
func (e *Explorer) Step(ctx context.Context) (CycleReport, error) {
	pose, err := e.source.Pose(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("read pose: %w", err)
	}
	scan, err := e.source.Scan(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("read scan: %w", err)
	}

	updated, err := e.Ingest(pose, scan)
	if err != nil {
		return CycleReport{}, err
	}

	e.mu.Lock()
	e.cycle++
	report := CycleReport{SessionID: e.sessionID, Cycle: e.cycle, Pose: pose, Updated: updated, Status: StatusExploring}
	e.mu.Unlock()

	report.Danger = e.avoider.InDanger(scan)
	if report.Danger {
		Logf("[EXPLORE] obstacle ahead, dropping path")
		e.follower.Clear()
	}
	if e.replan.Swap(false) {
		e.follower.Clear()
	}

	var stepErr error
	if !e.follower.Active() {
		report.Replanned = true
		report.Command, report.Status, stepErr = e.plan(pose)
	}
	if report.Status == StatusExploring && e.follower.Active() {
		cmd, done := e.follower.Step(pose)
		if done {
			e.mu.Lock()
			e.path = nil
			e.mu.Unlock()
		}
		report.Command = cmd
	}
	if report.Danger && report.Command.Linear > 0 {
		// turn toward the new path in place
		report.Command = Command{Angular: math.Copysign(math.Max(math.Abs(report.Command.Angular), spinRate), report.Command.Angular)}
	}

	if err := e.driver.Drive(ctx, report.Command); err != nil {
		Logf("[EXPLORE] drive failed: %v", err)
	}

	e.mu.Lock()
	e.status = report.Status
	report.Stalls = e.stalls
	report.Frontiers = append([]Frontier(nil), e.frontiers...)
	report.Path = append(Path(nil), e.path...)
	e.mu.Unlock()
	report.Waypoints = e.follower.Waypoints()
	report.Generation = e.grid.Generation()
	report.Time = time.Now()

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()
	for _, o := range e.observers {
		o(report)
	}
	return report, stepErr
}

func (e *Explorer) plan(pose Pose) (Command, Status, error) {
	frontiers, err := e.RecomputeFrontiers(pose)
	if err != nil {
		return Stop, StatusExploring, err
	}
	if len(frontiers) == 0 {
		e.mu.Lock()
		e.path = nil
		e.stalls = 0
		e.mu.Unlock()
		Logf("[EXPLORE] no frontiers left, map explored")
		return Stop, StatusExplored, nil
	}

	path, err := e.RecomputePath(pose)
	if err == nil {
		e.mu.Lock()
		e.stalls = 0
		e.mu.Unlock()
		Logf("[EXPLORE] %d frontiers, path of %d cells to %s", len(frontiers), len(path), path.Target())
		return Stop, StatusExploring, nil
	}
	if !errors.Is(err, ErrNoPath) {
		return Stop, StatusExploring, err
	}

	e.mu.Lock()
	e.stalls++
	stalls := e.stalls
	e.mu.Unlock()
	Logf("[EXPLORE] %d frontiers but none reachable (%d/%d)", len(frontiers), stalls, e.cfg.Loop.MaxStalls)
	if stalls >= e.cfg.Loop.MaxStalls {
		return Stop, StatusStalled, fmt.Errorf("%d failed plans: %w", stalls, ErrExplorationStalled)
	}
	return Command{Angular: spinRate}, StatusExploring, nil
}

// Run steps the session every Loop.Interval until the map is explored, ctx
// is cancelled or MaxCycles is reached. Robot read errors are logged and the
// cycle is retried on the next tick.
func (e *Explorer) Run(ctx context.Context) error {
	Logf("[EXPLORE] session %s started", e.sessionID)
	ticker := time.NewTicker(e.cfg.Loop.Interval)
	defer ticker.Stop()

	for cycles := 1; ; cycles++ {
		report, err := e.Step(ctx)
		switch {
		case errors.Is(err, ErrExplorationStalled):
			return err
		case ctx.Err() != nil:
			return nil
		case err != nil:
			Logf("[EXPLORE] cycle failed: %v", err)
		case report.Status == StatusExplored:
			Logf("[EXPLORE] session %s finished after %d cycles", e.sessionID, report.Cycle)
			return nil
		}
		if e.maxCycles > 0 && cycles >= e.maxCycles {
			Logf("[EXPLORE] reached %d cycles", e.maxCycles)
			_ = e.driver.Drive(ctx, Stop)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
