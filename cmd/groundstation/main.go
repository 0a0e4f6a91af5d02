// Command groundstation is the process entrypoint: it loads configuration,
// reads the orchestrator-supplied trajectory input, and runs the
// supervisor until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inspirers/groundstation/internal/groundstation/config"
	"github.com/inspirers/groundstation/internal/groundstation/logging"
	"github.com/inspirers/groundstation/internal/groundstation/supervisor"
)

func main() {
	inputPath := flag.String("trajectory-input", "trajectories.json", "path to the orchestrator-supplied trajectory input file")
	flag.Parse()

	bootLog := logging.New("info")

	cfg, err := config.Load()
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load configuration")
	}

	log := logging.New(cfg.LogLevel)

	input, err := supervisor.LoadTrajectoryInput(*inputPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load trajectory input")
	}
	if input.DroneCount == 0 {
		input.DroneCount = cfg.DroneCount
	}
	if input.Overlap == 0 {
		input.Overlap = cfg.Overlap
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := supervisor.Start(ctx, cfg, log, input)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sup.Stop(shutdownCtx)
}
