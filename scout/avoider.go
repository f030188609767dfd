package scout

import "math"

// Avoider watches the laser for obstacles inside a forward cone.
type Avoider struct {
	cfg SafetyConfig
}

// NewAvoider creates an obstacle avoider
func NewAvoider(cfg SafetyConfig) *Avoider {
	return &Avoider{cfg: cfg}
}

// Nearest returns the shortest echo inside the forward cone and its beam
// angle. ok is false when no beam falls inside the cone.
func (a *Avoider) Nearest(scan Scan) (distance, angle float64, ok bool) {
	cone := a.cfg.ConeHalfAngleDeg * math.Pi / 180
	distance = math.Inf(1)
	for i, d := range scan.Distances {
		if i >= len(scan.Angles) {
			break
		}
		theta := WrapAngle(scan.Angles[i])
		if math.Abs(theta) > cone || d < 0 {
			continue
		}
		if d < distance {
			distance, angle, ok = d, theta, true
		}
	}
	return distance, angle, ok
}

// InDanger reports whether any beam inside the forward cone is shorter than
// the stop distance. The active path must then be dropped and re-planned.
func (a *Avoider) InDanger(scan Scan) bool {
	d, _, ok := a.Nearest(scan)
	return ok && d < a.cfg.StopDistance
}
