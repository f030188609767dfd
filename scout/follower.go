package scout

import (
	"math"
	"sync"
)

// Command is a differential drive velocity command.
type Command struct {
	Linear  float64 `json:"linear"`  // world units per second
	Angular float64 `json:"angular"` // radians per second, CCW positive
}

// Stop is the zero command
var Stop = Command{}

// speedBands are the heading-error limits, in degrees, for each entry of
// FollowerConfig.SpeedLevels. Errors beyond the last band use the slowest level.
var speedBands = []float64{10, 20, 30, 45}

// PurePursuit steers the robot along a world path by chasing the furthest
// path point within the look-ahead distance.
type PurePursuit struct {
	cfg FollowerConfig

	mu   sync.Mutex
	path []Point
	goal Point
}

// NewPurePursuit creates a follower with no active path
func NewPurePursuit(cfg FollowerConfig) *PurePursuit {
	return &PurePursuit{cfg: cfg}
}

// SetPath replaces the active path. Staircase grid paths are simplified to
// their corners first.
func (f *PurePursuit) SetPath(points []Point) {
	simplified := SimplifyWaypoints(points, f.cfg.Simplify)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = simplified
	if len(simplified) > 0 {
		f.goal = simplified[0]
	}
}

// Clear drops the active path
func (f *PurePursuit) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = nil
}

// Active reports whether there is a path left to follow
func (f *PurePursuit) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.path) > 0
}

// Waypoints returns a copy of the remaining path
func (f *PurePursuit) Waypoints() []Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Point(nil), f.path...)
}

// Goal returns the look-ahead point chosen by the last Step
func (f *PurePursuit) Goal() Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.goal
}

// Step computes the next command for pose. done is true once the robot is
// within GoalThreshold of the final point; the path is then cleared and the
// command is Stop.
func (f *PurePursuit) Step(pose Pose) (cmd Command, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.path) == 0 {
		return Stop, true
	}

	pos := pose.Position()
	if len(f.path) == 1 && Distance(pos, f.path[0]) < f.cfg.GoalThreshold {
		f.path = nil
		return Stop, true
	}

	// furthest consecutive point inside the look-ahead circle
	goalIdx := 0
	for i, p := range f.path {
		if Distance(pos, p) > f.cfg.LookAhead {
			break
		}
		goalIdx = i
	}
	f.goal = f.path[goalIdx]
	f.path = f.path[goalIdx:]

	local := TransformPoint(f.goal, RobotFrame(pose))
	headingErr := math.Abs(math.Atan2(local.Y, local.X)) * 180 / math.Pi

	linear := f.speedFor(headingErr)
	curvature := 2 * local.Y / (f.cfg.LookAhead * f.cfg.LookAhead)
	return Command{Linear: linear, Angular: linear * curvature}, false
}

func (f *PurePursuit) speedFor(headingErrDeg float64) float64 {
	levels := f.cfg.SpeedLevels
	for i, band := range speedBands {
		if i >= len(levels)-1 {
			break
		}
		if headingErrDeg <= band {
			return levels[i]
		}
	}
	return levels[len(levels)-1]
}
