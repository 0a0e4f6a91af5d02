// Package supervisor owns process lifecycle: it sequences startup of the
// planner, cache adapter, signalling server, and command bridge, and
// reverses that order on shutdown.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	gs "github.com/inspirers/groundstation/internal/groundstation"
	"github.com/inspirers/groundstation/internal/groundstation/bridge"
	"github.com/inspirers/groundstation/internal/groundstation/cache"
	"github.com/inspirers/groundstation/internal/groundstation/config"
	"github.com/inspirers/groundstation/internal/groundstation/geo"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
	"github.com/inspirers/groundstation/internal/groundstation/signalling"
)

// TrajectoryInput is the test geometry and fleet sizing an orchestrator
// supplies for one run: the per-object trajectories, the local-plane
// origin, and the planner's drone_count/overlap knobs.
type TrajectoryInput struct {
	Trajectories planner.TrajectorySet
	Origin       geo.Coordinate
	DroneCount   int
	Overlap      float64
}

// Supervisor owns every long-lived component and their startup order.
type Supervisor struct {
	cfg    config.Config
	log    *logrus.Entry
	cache  *cache.Adapter
	server *signalling.Server
	bridge *bridge.Bridge

	httpServer *http.Server
	cancel     context.CancelFunc

	bridgeDone chan struct{}
	stopOnce   sync.Once
}

// Start runs the initialisation sequence in §4.G order: Planner (one-shot
// call against the supplied trajectory input), Shared Cache Adapter,
// Server, Command Bridge. It returns once the HTTP server's goroutine is
// launched, without waiting for the listener to bind (a listen failure is
// logged from that goroutine, not returned); the bridge, server loop, and
// HTTP server run in their own goroutines until Stop.
func Start(ctx context.Context, cfg config.Config, log *logrus.Logger, input TrajectoryInput) (*Supervisor, error) {
	entry := log.WithField("component", "supervisor")
	runCtx, cancel := context.WithCancel(ctx)

	plannerCfg := planner.Config{
		FOVDegrees:   cfg.FOVDegrees,
		AltitudeMinM: cfg.AltitudeMinM,
		AltitudeMaxM: cfg.AltitudeMaxM,
	}
	targets, err := planner.Plan(input.Trajectories, input.Origin, input.DroneCount, input.Overlap, plannerCfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("planning drone placement: %w", err)
	}
	entry.WithField("target_count", len(targets)).Info("planner produced fly-to targets")

	adapter := cache.NewAdapter(cache.Config{
		Host:            cfg.CacheHost,
		Port:            cfg.CachePort,
		CommandChannel:  cfg.CommandChannel,
		PositionTTLSecs: cfg.PositionTTLSeconds,
	}, entry)
	pingCtx, pingCancel := context.WithTimeout(runCtx, 5*time.Second)
	err = adapter.Ping(pingCtx)
	pingCancel()
	if err != nil {
		cancel()
		return nil, &gs.ConfigError{Reason: fmt.Sprintf("cache unreachable at startup: %v", err)}
	}

	server := signalling.NewServer(signalling.Config{
		Targets:     targets,
		Cache:       adapter,
		PositionTTL: cfg.PositionTTLSeconds,
	}, entry)
	server.SetContext(runCtx)

	cmdBridge := bridge.New(adapter, cfg.CommandChannel, server, entry)

	s := &Supervisor{
		cfg:        cfg,
		log:        entry,
		cache:      adapter,
		server:     server,
		bridge:     cmdBridge,
		cancel:     cancel,
		bridgeDone: make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ListenIP, cfg.ListenPort),
		Handler: server.Mux(),
	}

	go func() {
		cmdBridge.Run(runCtx)
		close(s.bridgeDone)
	}()
	go server.Run(runCtx)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Error("signalling server stopped unexpectedly")
		}
	}()

	entry.WithField("addr", s.httpServer.Addr).Info("signalling server listening")
	return s, nil
}

// Stop shuts down in reverse order: cancel the shared context (stopping the
// bridge and server loop goroutines), wait up to 5s for the bridge to
// actually exit its subscribe loop, close every session, shut down the HTTP
// server, then close the cache adapter last. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.log.Info("shutting down")
		s.cancel()

		select {
		case <-s.bridgeDone:
		case <-time.After(5 * time.Second):
			s.log.Warn("timed out waiting for command bridge to stop")
		}

		s.server.Shutdown()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("error shutting down HTTP server")
		}
		if err := s.cache.Close(); err != nil {
			s.log.WithError(err).Warn("error closing cache adapter")
		}
	})
}
