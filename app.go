package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/tudoscout/scout"
)

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 5 * time.Second

// App encapsulates the application state and dependencies
type App struct {
	Config       *scout.Config
	Explorer     *scout.Explorer
	StateTracker *scout.StateTracker
	MQTTClient   *scout.MQTTClient
	Publisher    *scout.Publisher
	Saver        *scout.MapSaver

	// CLI Flags (effectively dependencies)
	ConfigFile string
	OutputDir  string
	RobotURL   string
	WorldFile  string
	InitConfig string
	HttpPort   int
	MaxCycles  int
	HttpMode   bool
	Simulate   bool
	SimServer  bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.OutputDir = opts.OutputDir
	a.RobotURL = opts.RobotURL
	a.WorldFile = opts.WorldFile
	a.InitConfig = opts.InitConfig
	a.HttpPort = opts.HttpPort
	a.MaxCycles = opts.MaxCycles
	a.HttpMode = opts.HttpMode
	a.Simulate = opts.Simulate
	a.SimServer = opts.SimServer
}

// RunInitConfig writes the default configuration for editing
func (a *App) RunInitConfig() error {
	config := scout.DefaultConfig()
	if err := scout.SaveConfig(a.InitConfig, &config); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", a.InitConfig)
	return nil
}

// loadConfig reads the config file, falling back to defaults when the default
// path does not exist, then layers the environment and flags on top.
func (a *App) loadConfig() (*scout.Config, error) {
	var config *scout.Config
	if _, err := os.Stat(a.ConfigFile); errors.Is(err, os.ErrNotExist) && a.ConfigFile == "config.yaml" {
		log.Printf("No config.yaml found, using defaults")
		defaults := scout.DefaultConfig()
		config = &defaults
	} else {
		config, err = scout.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	config.ApplyEnv()
	if a.RobotURL != "" {
		config.Robot.ApiURL = a.RobotURL
	}
	if a.OutputDir != "" {
		config.Loop.OutputDir = a.OutputDir
	}
	a.Config = config
	return config, nil
}

// loadWorld builds the simulated ground truth: the --world floor plan when
// given, otherwise a walled grid split by a partition with a doorway.
func (a *App) loadWorld(config *scout.Config) (*scout.SimWorld, scout.Pose, error) {
	g := config.Grid
	origin := scout.Point{X: g.XMin, Y: g.YMin}
	width, height := g.XMax-g.XMin, g.YMax-g.YMin
	start := scout.Pose{X: g.XMin + width/4, Y: g.YMin + height/2}

	if a.WorldFile != "" {
		f, err := os.Open(a.WorldFile)
		if err != nil {
			return nil, scout.Pose{}, fmt.Errorf("opening world: %w", err)
		}
		defer func() { _ = f.Close() }()
		world, err := scout.LoadSimWorldPNG(f, origin, g.CellSize)
		if err != nil {
			return nil, scout.Pose{}, err
		}
		log.Printf("Loaded simulated world from %s", a.WorldFile)
		return world, start, nil
	}

	rows, cols := g.Dimensions()
	world := scout.NewSimWorld(origin, g.CellSize, rows, cols)
	world.AddBorder()
	midX := g.XMin + width/2
	world.AddWall(midX, g.YMin, midX, g.YMin+0.6*height)
	return world, start, nil
}

// buildRobot picks the robot connection: simulator, Lokarria HTTP API or MQTT
// telemetry, in that order.
func (a *App) buildRobot(config *scout.Config) (scout.RobotSource, scout.Driver, error) {
	switch {
	case a.Simulate:
		world, start, err := a.loadWorld(config)
		if err != nil {
			return nil, nil, err
		}
		robot := scout.NewSimRobot(world, start, config.Sensor.BeamMaxRange)
		log.Printf("Exploring simulated world from (%.1f, %.1f)", start.X, start.Y)
		return robot, robot, nil
	case config.Robot.ApiURL != "":
		client, err := scout.NewLokarriaClient(config.Robot.ApiURL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Exploring with robot at %s", config.Robot.ApiURL)
		return client, client, nil
	case a.MQTTClient != nil:
		log.Printf("Exploring with MQTT telemetry on %s and %s", a.MQTTClient.PoseTopic(), a.MQTTClient.ScanTopic())
		return a.MQTTClient, a.MQTTClient, nil
	}
	return nil, nil, errors.New("no robot configured: set robot.apiUrl, mqtt.broker or use --simulate")
}

// setup wires config, robot, explorer and observers
func (a *App) setup(ctx context.Context) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	client, err := scout.NewMQTTClient(ctx, config.MQTT)
	if err != nil {
		return fmt.Errorf("failed to create MQTT client: %w", err)
	}
	a.MQTTClient = client

	source, driver, err := a.buildRobot(config)
	if err != nil {
		return err
	}

	var opts []scout.ExplorerOption
	if a.MaxCycles > 0 {
		opts = append(opts, scout.WithMaxCycles(a.MaxCycles))
	}
	// The tracker needs the grid, so it is attached after construction.
	var observers []scout.Observer
	opts = append(opts, scout.WithObserver(func(r scout.CycleReport) {
		for _, o := range observers {
			o(r)
		}
	}))
	a.Explorer = scout.NewExplorer(*config, source, driver, opts...)

	grid := a.Explorer.Grid()
	a.StateTracker = scout.NewStateTracker(grid, config.Frontier)
	observers = append(observers, a.StateTracker.Observe)
	if a.MQTTClient != nil {
		a.Publisher = scout.NewPublisher(a.MQTTClient.GetClient(), config.MQTT.PublishPrefix)
		observers = append(observers, a.Publisher.Observer(grid))
	}
	a.Saver = scout.NewMapSaver(config.Loop.OutputDir, config.Frontier)

	rows, cols := grid.Size()
	log.Printf("Session %s: %dx%d grid at %.2f per cell", a.Explorer.SessionID(), rows, cols, config.Grid.CellSize)
	return nil
}

// RunService explores until the map is done or a signal arrives
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.runService(ctx)
}

func (a *App) runService(ctx context.Context) error {
	if err := a.setup(ctx); err != nil {
		return err
	}
	defer func() {
		if a.MQTTClient != nil {
			a.MQTTClient.Disconnect()
		}
	}()

	var wg sync.WaitGroup
	saveCtx, stopSaver := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Saver.Run(saveCtx, a.Config.Loop.SaveInterval, a.StateTracker)
	}()

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.HttpPort),
			Handler:           newHTTPServer(a.Explorer, a.StateTracker),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("HTTP server listening on :%d", a.HttpPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	runErr := a.Explorer.Run(ctx)
	if runErr != nil {
		log.Printf("Exploration ended: %v", runErr)
	} else {
		log.Printf("Exploration ended with status %s", a.Explorer.Status())
	}

	// Keep serving the finished map until interrupted.
	if server != nil && ctx.Err() == nil {
		log.Printf("Serving map on :%d, press Ctrl+C to exit", a.HttpPort)
		<-ctx.Done()
	}

	stopSaver()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
		cancel()
	}
	wg.Wait()
	return runErr
}

// RunSimServer serves a simulated robot over the Lokarria API so that a
// second process can explore it with --robot.
func (a *App) RunSimServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	world, start, err := a.loadWorld(config)
	if err != nil {
		return err
	}
	robot := scout.NewSimRobot(world, start, config.Sensor.BeamMaxRange)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.HttpPort),
		Handler:           scout.NewSimServer(robot),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Simulated robot listening on :%d", a.HttpPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
