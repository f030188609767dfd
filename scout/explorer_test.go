package scout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRobot is a RobotSource and Driver that replays a fixed pose and scan.
type fakeRobot struct {
	mu      sync.Mutex
	pose    Pose
	scan    Scan
	poseErr error
	cmds    []Command
}

func (f *fakeRobot) Pose(context.Context) (Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pose, f.poseErr
}

func (f *fakeRobot) Scan(context.Context) (Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scan, nil
}

func (f *fakeRobot) Drive(_ context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeRobot) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.cmds...)
}

func testExplorerConfig() Config {
	cfg := DefaultConfig()
	cfg.Grid = GridConfig{CellSize: 1, XMin: 0, YMin: 0, XMax: 10, YMax: 10}
	cfg.Loop.Interval = time.Millisecond
	cfg.Loop.MaxStalls = 2
	return cfg
}

// newOpenRoomExplorer returns an explorer over a known-open 10x10 grid whose
// last column is still unknown, with the robot at cell (5,2) facing +X.
func newOpenRoomExplorer(t *testing.T, cfg Config, opts ...ExplorerOption) (*Explorer, *fakeRobot) {
	t.Helper()
	robot := &fakeRobot{pose: Pose{X: 2.5, Y: 5.5}}
	e := NewExplorer(cfg, robot, robot, opts...)
	e.Grid().Fill(0.1)
	fillRect(t, e.Grid(), 0, 9, 9, 9, UnknownProbability)
	return e, robot
}

func TestExplorer_SessionID(t *testing.T) {
	e := NewExplorer(testExplorerConfig(), &fakeRobot{}, &fakeRobot{})
	_, err := uuid.Parse(e.SessionID())
	assert.NoError(t, err)
	assert.Equal(t, StatusIdle, e.Status())

	e = NewExplorer(testExplorerConfig(), &fakeRobot{}, &fakeRobot{}, WithSessionID("lab-1"))
	assert.Equal(t, "lab-1", e.SessionID())
}

func TestExplorer_PlansToFrontier(t *testing.T) {
	e, robot := newOpenRoomExplorer(t, testExplorerConfig())

	report, err := e.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusExploring, report.Status)
	assert.True(t, report.Replanned)
	require.Len(t, report.Frontiers, 1)
	assert.Equal(t, 10, report.Frontiers[0].Size())
	assert.Equal(t, Cell{4, 9}, e.Target().Target)

	require.NotEmpty(t, report.Path)
	assert.Equal(t, Cell{5, 2}, report.Path[0])
	assert.Equal(t, Cell{4, 9}, report.Path.Target())
	assert.Len(t, report.Path, 9)
	require.NoError(t, report.Path.Validate())

	// first leg heads down one row, so the robot turns right while creeping forward
	assert.Greater(t, report.Command.Linear, 0.0)
	assert.Less(t, report.Command.Angular, 0.0)
	assert.Equal(t, []Command{report.Command}, robot.commands())
	assert.NotEmpty(t, report.Waypoints)
}

func TestExplorer_ExploredWhenNothingUnknown(t *testing.T) {
	robot := &fakeRobot{pose: Pose{X: 2.5, Y: 5.5}}
	e := NewExplorer(testExplorerConfig(), robot, robot)
	e.Grid().Fill(0.1)

	report, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusExplored, report.Status)
	assert.Empty(t, report.Frontiers)
	assert.Empty(t, report.Path)
	assert.Equal(t, []Command{Stop}, robot.commands())
	assert.Equal(t, StatusExplored, e.Status())
}

func TestExplorer_StallsWhenNothingReachable(t *testing.T) {
	cfg := testExplorerConfig()
	// open cells are not passable for the planner, so no wave leaves the robot
	cfg.Planner.OpenThreshold = 0.05
	e, robot := newOpenRoomExplorer(t, cfg)

	report, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusExploring, report.Status)
	assert.Equal(t, 1, report.Stalls)
	assert.Equal(t, Command{Angular: spinRate}, report.Command)

	report, err = e.Step(context.Background())
	assert.ErrorIs(t, err, ErrExplorationStalled)
	assert.Equal(t, StatusStalled, report.Status)
	assert.Equal(t, Stop, robot.commands()[1])

	err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrExplorationStalled)
}

func TestExplorer_RequestReplan(t *testing.T) {
	e, _ := newOpenRoomExplorer(t, testExplorerConfig())
	ctx := context.Background()

	report, err := e.Step(ctx)
	require.NoError(t, err)
	assert.True(t, report.Replanned)

	report, err = e.Step(ctx)
	require.NoError(t, err)
	assert.False(t, report.Replanned, "active path is kept between cycles")

	e.RequestReplan()
	report, err = e.Step(ctx)
	require.NoError(t, err)
	assert.True(t, report.Replanned)
	assert.Equal(t, 3, report.Cycle)
}

func TestExplorer_DangerDropsPath(t *testing.T) {
	e, robot := newOpenRoomExplorer(t, testExplorerConfig())
	ctx := context.Background()

	_, err := e.Step(ctx)
	require.NoError(t, err)

	// an echo straight ahead closer than the stop distance, far from any cell border
	robot.mu.Lock()
	robot.scan = Scan{Angles: []float64{0}, Distances: []float64{0.3}}
	robot.mu.Unlock()

	report, err := e.Step(ctx)
	require.NoError(t, err)
	assert.True(t, report.Danger)
	assert.True(t, report.Replanned)
	assert.Equal(t, 0.0, report.Command.Linear)
}

func TestExplorer_Observers(t *testing.T) {
	var reports []CycleReport
	e, _ := newOpenRoomExplorer(t, testExplorerConfig(), WithObserver(func(r CycleReport) {
		reports = append(reports, r)
	}))

	for i := 0; i < 3; i++ {
		_, err := e.Step(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, e.SessionID(), r.SessionID)
	}
	assert.Equal(t, reports[2], e.LastReport())
}

func TestExplorer_RunStopsWhenExplored(t *testing.T) {
	robot := &fakeRobot{pose: Pose{X: 2.5, Y: 5.5}}
	e := NewExplorer(testExplorerConfig(), robot, robot)
	e.Grid().Fill(0.1)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, StatusExplored, e.Status())
}

func TestExplorer_RunMaxCyclesWithRobotErrors(t *testing.T) {
	robot := &fakeRobot{poseErr: errors.New("robot offline")}
	e := NewExplorer(testExplorerConfig(), robot, robot, WithMaxCycles(3))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []Command{Stop}, robot.commands())
	assert.Equal(t, 0, e.LastReport().Cycle)
}

func TestExplorer_RunHonoursContext(t *testing.T) {
	e, _ := newOpenRoomExplorer(t, testExplorerConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestExplorer_OutOfBoundsRobot(t *testing.T) {
	robot := &fakeRobot{pose: Pose{X: -5, Y: 5}}
	e := NewExplorer(testExplorerConfig(), robot, robot)

	_, err := e.Step(context.Background())
	assert.ErrorIs(t, err, ErrRobotOutOfBounds)

	_, err = e.RecomputePath(Pose{X: 50, Y: 50})
	assert.ErrorIs(t, err, ErrRobotOutOfBounds)
}

func TestExplorer_ExploresSimulatedRoom(t *testing.T) {
	world := NewSimWorld(Point{}, 1, 20, 20)
	world.AddBorder()
	world.AddWall(10, 0, 10.9, 12)

	cfg := testExplorerConfig()
	cfg.Grid = GridConfig{CellSize: 1, XMin: 0, YMin: 0, XMax: 20, YMax: 20}
	cfg.Loop.MaxStalls = 1000
	sim := NewSimRobot(world, Pose{X: 4.5, Y: 4.5, Heading: 0}, 40)
	e := NewExplorer(cfg, sim, sim)

	known := func() int {
		snap := e.Grid().Snapshot()
		n := 0
		for _, p := range snap.Cells {
			if p != UnknownProbability {
				n++
			}
		}
		return n
	}

	_, err := e.Step(context.Background())
	require.NoError(t, err)
	first := known()
	assert.Greater(t, first, 40)

	for i := 0; i < 40; i++ {
		if _, err := e.Step(context.Background()); err != nil {
			require.NotErrorIs(t, err, ErrExplorationStalled)
		}
		pose, _ := sim.Pose(context.Background())
		require.False(t, world.Occupied(pose.X, pose.Y), "robot drove into a wall at %+v", pose)
	}
	assert.GreaterOrEqual(t, known(), first)
}
