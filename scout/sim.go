package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"sync"
	"time"
)

// SimWorld is a ground-truth bitmap of walls used by the simulated robot.
// Row 0 is the bottom of the world (lowest Y).
type SimWorld struct {
	walls    []bool
	rows     int
	cols     int
	cellSize float64
	origin   Point
}

// NewSimWorld creates an empty world of rows x cols cells whose lower-left
// corner is at origin.
func NewSimWorld(origin Point, cellSize float64, rows, cols int) *SimWorld {
	if rows <= 0 || cols <= 0 || cellSize <= 0 {
		panic(fmt.Sprintf("scout: invalid sim world %dx%d cell %g", rows, cols, cellSize))
	}
	return &SimWorld{
		walls:    make([]bool, rows*cols),
		rows:     rows,
		cols:     cols,
		cellSize: cellSize,
		origin:   origin,
	}
}

// LoadSimWorldPNG reads a world bitmap where dark pixels are walls. The top
// image row becomes the highest world row.
func LoadSimWorldPNG(r io.Reader, origin Point, cellSize float64) (*SimWorld, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode world image: %w", err)
	}
	b := img.Bounds()
	w := NewSimWorld(origin, cellSize, b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if gray.Y < 128 {
				w.walls[(b.Max.Y-1-y)*w.cols+(x-b.Min.X)] = true
			}
		}
	}
	return w, nil
}

// AddWall marks the axis-aligned world rectangle between two corners as wall.
func (w *SimWorld) AddWall(x0, y0, x1, y1 float64) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	c0, r0 := w.cellOf(x0, y0)
	c1, r1 := w.cellOf(x1, y1)
	for r := max(r0, 0); r <= min(r1, w.rows-1); r++ {
		for c := max(c0, 0); c <= min(c1, w.cols-1); c++ {
			w.walls[r*w.cols+c] = true
		}
	}
}

// AddBorder walls off the outermost ring of cells.
func (w *SimWorld) AddBorder() {
	for c := 0; c < w.cols; c++ {
		w.walls[c] = true
		w.walls[(w.rows-1)*w.cols+c] = true
	}
	for r := 0; r < w.rows; r++ {
		w.walls[r*w.cols] = true
		w.walls[r*w.cols+w.cols-1] = true
	}
}

func (w *SimWorld) cellOf(x, y float64) (col, row int) {
	return int(math.Floor((x - w.origin.X) / w.cellSize)), int(math.Floor((y - w.origin.Y) / w.cellSize))
}

// Occupied reports whether the world point is inside a wall. Points outside
// the bitmap count as walls.
func (w *SimWorld) Occupied(x, y float64) bool {
	c, r := w.cellOf(x, y)
	if r < 0 || r >= w.rows || c < 0 || c >= w.cols {
		return true
	}
	return w.walls[r*w.cols+c]
}

// Raycast returns the distance from origin to the first wall along angle, or
// maxRange when nothing is hit.
func (w *SimWorld) Raycast(origin Point, angle, maxRange float64) float64 {
	step := w.cellSize / 4
	dx, dy := math.Cos(angle), math.Sin(angle)
	for d := step; d < maxRange; d += step {
		if w.Occupied(origin.X+d*dx, origin.Y+d*dy) {
			return d
		}
	}
	return maxRange
}

// LaserProperties describes a fixed angular sweep in robot-relative radians.
type LaserProperties struct {
	StartAngle     float64 `json:"StartAngle"`
	EndAngle       float64 `json:"EndAngle"`
	AngleIncrement float64 `json:"AngleIncrement"`
}

// Beams returns the number of beams in the sweep
func (l LaserProperties) Beams() int {
	if l.AngleIncrement <= 0 {
		return 0
	}
	return int(math.Round((l.EndAngle-l.StartAngle)/l.AngleIncrement)) + 1
}

// DefaultLaser is a 270 degree sweep at one degree steps
var DefaultLaser = LaserProperties{
	StartAngle:     -135 * math.Pi / 180,
	EndAngle:       135 * math.Pi / 180,
	AngleIncrement: math.Pi / 180,
}

// SimRobot is a unicycle robot with a laser, moving through a SimWorld. Each
// Drive call advances the simulation by one tick.
type SimRobot struct {
	world    *SimWorld
	laser    LaserProperties
	maxRange float64
	tick     time.Duration
	radius   float64

	mu   sync.Mutex
	pose Pose
	cmd  Command
}

// NewSimRobot places a robot at start
func NewSimRobot(world *SimWorld, start Pose, maxRange float64) *SimRobot {
	return &SimRobot{
		world:    world,
		laser:    DefaultLaser,
		maxRange: maxRange,
		tick:     200 * time.Millisecond,
		radius:   world.cellSize / 2,
		pose:     start,
	}
}

// Laser returns the sweep geometry
func (s *SimRobot) Laser() LaserProperties { return s.laser }

// Pose returns the ground-truth pose
func (s *SimRobot) Pose(ctx context.Context) (Pose, error) {
	if err := ctx.Err(); err != nil {
		return Pose{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose, nil
}

// Scan ray-casts every beam of the laser from the current pose.
func (s *SimRobot) Scan(ctx context.Context) (Scan, error) {
	if err := ctx.Err(); err != nil {
		return Scan{}, err
	}
	s.mu.Lock()
	pose := s.pose
	s.mu.Unlock()

	n := s.laser.Beams()
	distances := make([]float64, n)
	for i := range distances {
		a := s.laser.StartAngle + float64(i)*s.laser.AngleIncrement
		distances[i] = s.world.Raycast(pose.Position(), pose.Heading+a, s.maxRange)
	}
	scan := NewSweepScan(s.laser.StartAngle, s.laser.AngleIncrement, distances)
	scan.Timestamp = time.Now().UnixMilli()
	return scan, nil
}

// Drive sets the command and advances the simulation by one tick.
func (s *SimRobot) Drive(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	s.Advance(s.tick)
	return nil
}

// Advance integrates the current command over dt. Moves that would put the
// robot's body inside a wall leave the position unchanged.
func (s *SimRobot) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := dt.Seconds()
	heading := WrapAngle(s.pose.Heading + s.cmd.Angular*sec)
	x := s.pose.X + s.cmd.Linear*sec*math.Cos(heading)
	y := s.pose.Y + s.cmd.Linear*sec*math.Sin(heading)
	s.pose.Heading = heading
	if s.collides(x, y) {
		return
	}
	s.pose.X, s.pose.Y = x, y
}

func (s *SimRobot) collides(x, y float64) bool {
	if s.world.Occupied(x, y) {
		return true
	}
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		if s.world.Occupied(x+s.radius*math.Cos(a), y+s.radius*math.Sin(a)) {
			return true
		}
	}
	return false
}

// SimServer exposes a SimRobot over the Lokarria HTTP API.
type SimServer struct {
	robot *SimRobot
	mux   *http.ServeMux
}

// NewSimServer creates the HTTP handler for robot
func NewSimServer(robot *SimRobot) *SimServer {
	s := &SimServer{robot: robot, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET "+pathLocalization, s.handleLocalization)
	s.mux.HandleFunc("GET "+pathLaserProperties, s.handleLaserProperties)
	s.mux.HandleFunc("GET "+pathLaserEchoes, s.handleEchoes)
	s.mux.HandleFunc("POST "+pathDifferentialDrive, s.handleDrive)
	return s
}

func (s *SimServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *SimServer) handleLocalization(w http.ResponseWriter, r *http.Request) {
	pose, err := s.robot.Pose(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	var resp localizationResponse
	resp.Pose.Position = vector3{X: pose.X, Y: pose.Y}
	resp.Pose.Orientation = quaternion{W: math.Cos(pose.Heading / 2), Z: math.Sin(pose.Heading / 2)}
	resp.Timestamp = time.Now().UnixMilli()
	writeJSON(w, resp)
}

func (s *SimServer) handleLaserProperties(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.robot.Laser())
}

func (s *SimServer) handleEchoes(w http.ResponseWriter, r *http.Request) {
	scan, err := s.robot.Scan(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, echoesResponse{Echoes: scan.Distances, Timestamp: scan.Timestamp})
}

func (s *SimServer) handleDrive(w http.ResponseWriter, r *http.Request) {
	var req driveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid drive command: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.robot.Drive(r.Context(), Command{Linear: req.TargetLinearSpeed, Angular: req.TargetAngularSpeed}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logf("[SIM] encode response: %v", err)
	}
}
