package scout

import (
	"fmt"
	"math"
	"time"
)

// Point represents a 2D coordinate in world units
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is a (row, col) grid index. Rows follow world Y, columns follow world X.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns the cell offset by dr rows and dc columns
func (c Cell) Add(dr, dc int) Cell {
	return Cell{Row: c.Row + dr, Col: c.Col + dc}
}

// Manhattan returns the 4-connected step distance between two cells
func (c Cell) Manhattan(o Cell) int {
	return absInt(c.Row-o.Row) + absInt(c.Col-o.Col)
}

// DistanceSq returns the squared Euclidean distance between two cells
func (c Cell) DistanceSq(o Cell) int {
	dr := c.Row - o.Row
	dc := c.Col - o.Col
	return dr*dr + dc*dc
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// neighbourOffsets lists the 4-connected neighbours in the order up, left, right, down.
var neighbourOffsets = [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}

// Pose is the robot pose in world coordinates. Heading is in radians, CCW from +X.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Position returns the pose location as a Point
func (p Pose) Position() Point {
	return Point{X: p.X, Y: p.Y}
}

// Scan is one laser sweep as parallel arrays of robot-relative beam angles
// (radians) and measured distances (world units).
type Scan struct {
	Angles    []float64 `json:"angles"`
	Distances []float64 `json:"distances"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// NewSweepScan builds a scan from a fixed angular sweep with one distance per step.
func NewSweepScan(start, step float64, distances []float64) Scan {
	angles := make([]float64, len(distances))
	for i := range distances {
		angles[i] = start + float64(i)*step
	}
	return Scan{Angles: angles, Distances: distances}
}

// Validate checks that angles and distances are parallel and finite
func (s Scan) Validate() error {
	if len(s.Angles) != len(s.Distances) {
		return fmt.Errorf("scan has %d angles but %d distances", len(s.Angles), len(s.Distances))
	}
	for i, d := range s.Distances {
		if math.IsNaN(d) || math.IsNaN(s.Angles[i]) {
			return fmt.Errorf("scan beam %d is NaN", i)
		}
	}
	return nil
}

// GridConfig describes the world extent covered by the occupancy grid
type GridConfig struct {
	CellSize float64 `yaml:"cellSize" json:"cellSize"`
	XMin     float64 `yaml:"xMin" json:"xMin"`
	YMin     float64 `yaml:"yMin" json:"yMin"`
	XMax     float64 `yaml:"xMax" json:"xMax"`
	YMax     float64 `yaml:"yMax" json:"yMax"`
}

// Dimensions returns the row and column counts implied by the extents
func (g GridConfig) Dimensions() (rows, cols int) {
	rows = int(math.Ceil((g.YMax - g.YMin) / g.CellSize))
	cols = int(math.Ceil((g.XMax - g.XMin) / g.CellSize))
	return rows, cols
}

// SensorConfig holds the inverse sensor model tunables
type SensorConfig struct {
	BeamMaxRange     float64 `yaml:"beamMaxRange" json:"beamMaxRange"`         // world units
	ObstacleDepth    float64 `yaml:"obstacleDepth" json:"obstacleDepth"`       // world units
	BeamHalfWidthDeg float64 `yaml:"beamHalfWidthDeg" json:"beamHalfWidthDeg"` // degrees
	ProbMax          float64 `yaml:"probMax" json:"probMax"`
}

// BeamHalfWidth returns the beam half-width in radians
func (s SensorConfig) BeamHalfWidth() float64 {
	return s.BeamHalfWidthDeg * math.Pi / 180
}

// FrontierConfig holds the frontier detector tunables
type FrontierConfig struct {
	UnknownLower float64 `yaml:"unknownLower" json:"unknownLower"`
	UnknownUpper float64 `yaml:"unknownUpper" json:"unknownUpper"`
	MinSize      int     `yaml:"minSize" json:"minSize"`
	StartAhead   int     `yaml:"startAhead" json:"startAhead"` // cells ahead of the robot to seed the search
}

// PlannerConfig holds the wavefront planner tunables
type PlannerConfig struct {
	OpenThreshold     float64 `yaml:"openThreshold" json:"openThreshold"`
	ObstacleCertainty float64 `yaml:"obstacleCertainty" json:"obstacleCertainty"`
	FootprintRadius   float64 `yaml:"footprintRadius" json:"footprintRadius"` // world units
}

// SafetyConfig configures the forward-cone danger check
type SafetyConfig struct {
	StopDistance     float64 `yaml:"stopDistance" json:"stopDistance"`
	ConeHalfAngleDeg float64 `yaml:"coneHalfAngleDeg" json:"coneHalfAngleDeg"`
}

// FollowerConfig configures the pure pursuit path follower
type FollowerConfig struct {
	LookAhead     float64   `yaml:"lookAhead" json:"lookAhead"`
	GoalThreshold float64   `yaml:"goalThreshold" json:"goalThreshold"`
	SpeedLevels   []float64 `yaml:"speedLevels" json:"speedLevels"` // fastest first
	Simplify      float64   `yaml:"simplify" json:"simplify"`       // Douglas-Peucker tolerance, world units
}

// LoopConfig configures the exploration control loop
type LoopConfig struct {
	Interval     time.Duration `yaml:"interval" json:"interval"`
	MaxStalls    int           `yaml:"maxStalls" json:"maxStalls"`
	SaveInterval time.Duration `yaml:"saveInterval" json:"saveInterval"`
	OutputDir    string        `yaml:"outputDir" json:"outputDir"`
}

// RobotConfig points at the robot server
type RobotConfig struct {
	ApiURL string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	PoseTopic     string `yaml:"poseTopic,omitempty" json:"poseTopic,omitempty"`
	ScanTopic     string `yaml:"scanTopic,omitempty" json:"scanTopic,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Grid     GridConfig     `yaml:"grid" json:"grid"`
	Sensor   SensorConfig   `yaml:"sensor" json:"sensor"`
	Frontier FrontierConfig `yaml:"frontier" json:"frontier"`
	Planner  PlannerConfig  `yaml:"planner" json:"planner"`
	Safety   SafetyConfig   `yaml:"safety" json:"safety"`
	Follower FollowerConfig `yaml:"follower" json:"follower"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Robot    RobotConfig    `yaml:"robot" json:"robot"`
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
}

// DefaultConfig returns the stock tunables: a 1 m grid over a 120 m square,
// a 40 m laser and a 0.98 probability ceiling.
func DefaultConfig() Config {
	return Config{
		Grid: GridConfig{CellSize: 1, XMin: -60, YMin: -60, XMax: 60, YMax: 60},
		Sensor: SensorConfig{
			BeamMaxRange:     40,
			ObstacleDepth:    0.5,
			BeamHalfWidthDeg: 0.5,
			ProbMax:          0.98,
		},
		Frontier: FrontierConfig{
			UnknownLower: 0.45,
			UnknownUpper: 0.55,
			MinSize:      4,
			StartAhead:   3,
		},
		Planner: PlannerConfig{
			OpenThreshold:     0.54,
			ObstacleCertainty: 0.8,
			FootprintRadius:   0.5,
		},
		Safety: SafetyConfig{StopDistance: 0.4, ConeHalfAngleDeg: 30},
		Follower: FollowerConfig{
			LookAhead:     1,
			GoalThreshold: 0.5,
			SpeedLevels:   []float64{0.4, 0.35, 0.3, 0.25, 0.2},
			Simplify:      0.25,
		},
		Loop: LoopConfig{
			Interval:     100 * time.Millisecond,
			MaxStalls:    5,
			SaveInterval: 5 * time.Second,
			OutputDir:    ".",
		},
		MQTT: MQTTConfig{PublishPrefix: "tudoscout"},
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
