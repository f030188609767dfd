package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
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

// application is what run drives; tests substitute a mock.
type application interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunSimServer() error
	RunInitConfig() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app application) error {
	fs := flag.NewFlagSet("tudoscout", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.OutputDir, "output", "", "Directory for map.png, map.yaml and rendered views (default: loop.outputDir)")
	fs.StringVar(&opts.RobotURL, "robot", "", "Lokarria robot server URL, e.g. http://localhost:50000 (overrides robot.apiUrl)")
	fs.StringVar(&opts.WorldFile, "world", "", "PNG floor plan for --simulate and --sim-server; dark pixels are walls")
	fs.StringVar(&opts.InitConfig, "init-config", "", "Write the default configuration to this path and exit")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.IntVar(&opts.MaxCycles, "max-cycles", 0, "Stop exploring after this many cycles (0 = no limit)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for the live map and replanning")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Explore a simulated world instead of a real robot")
	fs.BoolVar(&opts.SimServer, "sim-server", false, "Serve a simulated robot over the Lokarria HTTP API")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "tudoscout version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.InitConfig != "":
		return app.RunInitConfig()
	case opts.SimServer:
		return app.RunSimServer()
	default:
		_, _ = fmt.Fprintln(out, "tudoscout service starting...")
		return app.RunService()
	}
}
