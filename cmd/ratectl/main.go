package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airtap/ratectl/internal/app"
	"github.com/airtap/ratectl/internal/config"
	"github.com/airtap/ratectl/internal/util"
	"github.com/airtap/ratectl/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runCmd := flag.NewFlagSet("run", flag.ExitOnError)
			configPath := runCmd.String("config", "config.yaml", "Path to config file")
			_ = runCmd.Parse(os.Args[2:])
			if *configPath == "config.yaml" && runCmd.NArg() > 0 {
				*configPath = runCmd.Arg(0)
			}
			runController(*configPath)
			return
		case "check":
			checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
			configPath := checkCmd.String("config", "config.yaml", "Path to config file")
			_ = checkCmd.Parse(os.Args[2:])
			if *configPath == "config.yaml" && checkCmd.NArg() > 0 {
				*configPath = checkCmd.Arg(0)
			}
			checkConfig(*configPath)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "-v", "--version":
			fmt.Println(version.Version)
			return
		}
	}

	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()
	if *configPath == "config.yaml" && len(flag.Args()) > 0 {
		*configPath = flag.Arg(0)
	}
	runController(*configPath)
}

func runController(configPath string) {
	level, _ := util.ParseLevel(levelFromConfig(configPath))
	logger := util.NewLogger(level)

	supervisor := app.NewSupervisor(configPath, logger)
	if err := supervisor.Start(); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	supervisor.Stop()
}

// levelFromConfig peeks at the config for the log level so the logger covers
// startup too; a broken config still gets reported through the default level.
func levelFromConfig(path string) string {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return "info"
	}
	return cfg.LogLevel
}

func checkConfig(path string) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	radios := 0
	for _, ap := range cfg.AccessPoints {
		radios += len(ap.Radios)
	}
	fmt.Printf("config valid: %d access points, %d radios\n", len(cfg.AccessPoints), radios)
	os.Exit(0)
}

func printHelp() {
	fmt.Print(`ratectl - user-space WiFi rate and power controller

Usage:
  ratectl run --config <path>   Start the controller
  ratectl check --config <path> Validate config file
  ratectl help                  Show this help
  ratectl version               Print version

Legacy:
  ratectl --config <path>
  ratectl <config-path>
`)
}
