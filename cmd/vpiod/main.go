package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dougsko/vpiod/pkg/config"
	"github.com/dougsko/vpiod/pkg/logging"
)

var (
	configPath = flag.String("config", "config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("vpiod version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	// Load configuration, falling back to defaults when the default config
	// file is simply absent
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !flagWasSet("config") {
			cfg = config.Default()
		} else {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Infof("main", "vpiod version %s starting...", Version)
	logging.Infof("main", "Capture: %.0f Hz, echo cancel: %t, render: %t",
		cfg.Audio.SampleRate, cfg.Audio.EchoCancel, cfg.Audio.EnableRender)
	logging.Infof("main", "Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port)

	daemon, err := NewDaemon(cfg)
	if err != nil {
		logging.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Errorf("main", "Failed to start daemon: %v", err)
		os.Exit(1)
	}

	logging.Info("main", "vpiod started successfully")

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}

	logging.Info("main", "vpiod stopped")
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
