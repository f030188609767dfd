package scout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file.
// Fields omitted from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration on top of the defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the tunables for values the core cannot work with
func (c *Config) Validate() error {
	g := c.Grid
	if g.CellSize <= 0 {
		return fmt.Errorf("grid.cellSize must be positive, got %g", g.CellSize)
	}
	if g.XMax <= g.XMin || g.YMax <= g.YMin {
		return fmt.Errorf("grid extents are empty: x[%g,%g] y[%g,%g]", g.XMin, g.XMax, g.YMin, g.YMax)
	}

	s := c.Sensor
	if s.BeamMaxRange <= 0 {
		return fmt.Errorf("sensor.beamMaxRange must be positive")
	}
	if s.ObstacleDepth <= 0 {
		return fmt.Errorf("sensor.obstacleDepth must be positive")
	}
	if s.BeamHalfWidthDeg <= 0 {
		return fmt.Errorf("sensor.beamHalfWidthDeg must be positive")
	}
	// A ceiling of exactly 1 lets a single reading pin a cell forever.
	if s.ProbMax <= 0.5 || s.ProbMax >= 1 {
		return fmt.Errorf("sensor.probMax must be in (0.5, 1), got %g", s.ProbMax)
	}

	f := c.Frontier
	if !(0 < f.UnknownLower && f.UnknownLower < 0.5 && 0.5 < f.UnknownUpper && f.UnknownUpper < 1) {
		return fmt.Errorf("frontier unknown band [%g, %g) must straddle 0.5", f.UnknownLower, f.UnknownUpper)
	}
	if f.MinSize < 1 {
		return fmt.Errorf("frontier.minSize must be at least 1")
	}
	if f.StartAhead < 0 {
		return fmt.Errorf("frontier.startAhead must not be negative")
	}

	p := c.Planner
	if p.OpenThreshold <= 0 || p.OpenThreshold >= 1 {
		return fmt.Errorf("planner.openThreshold must be in (0, 1)")
	}
	if p.ObstacleCertainty <= 0.5 || p.ObstacleCertainty >= 1 {
		return fmt.Errorf("planner.obstacleCertainty must be in (0.5, 1)")
	}
	if p.FootprintRadius < 0 {
		return fmt.Errorf("planner.footprintRadius must not be negative")
	}

	if c.Follower.LookAhead <= 0 {
		return fmt.Errorf("follower.lookAhead must be positive")
	}
	if len(c.Follower.SpeedLevels) == 0 {
		return fmt.Errorf("follower.speedLevels must not be empty")
	}

	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive")
	}
	if c.Loop.SaveInterval <= 0 {
		return fmt.Errorf("loop.saveInterval must be positive")
	}

	return nil
}

// ApplyEnv overrides MQTT settings from the environment, as the service
// container passes broker credentials that way.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
	if v := os.Getenv("ROBOT_API_URL"); v != "" {
		c.Robot.ApiURL = v
	}
}
