package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stepflow-io/stepflow/pkg/engine"
)

// Sweeper drives due scheduled steps back through the engine on a cron
// schedule. Timer steps and business retries park with a due timestamp;
// the sweeper is what wakes them up.
type Sweeper struct {
	id           string
	engine       *engine.Engine
	schedule     string
	logger       *slog.Logger
	cron         *cron.Cron
	restartCount int
}

// NewSweeper creates a new Sweeper instance.
func NewSweeper(id string, eng *engine.Engine, schedule string, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		id:       id,
		engine:   eng,
		schedule: schedule,
		logger:   logger.With("module", "sweeper"),
	}
}

// Start begins the sweeper service.
func (s *Sweeper) Start(ctx context.Context) error {
	sCtx, cancel := context.WithCancel(ctx)

	s.logger.Info("Starting sweeper", "schedule", s.schedule)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.sweep(sCtx)
	})
	if err != nil {
		cancel()

		return err
	}

	// Run one sweep immediately so a restart does not leave due steps
	// waiting for the next tick.
	s.sweep(sCtx)

	s.cron.Start()
	s.handleSignals(sCtx, cancel)

	<-sCtx.Done()
	s.logger.Info("Sweeper context cancelled, stopping...")

	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	processed, err := s.engine.ProcessDueScheduledSteps(ctx)
	if err != nil {
		s.logger.Error("Sweep finished with errors", "processed", processed, "error", err)

		return
	}

	if processed > 0 {
		s.logger.Info("Sweep processed due steps", "processed", processed)
	} else {
		s.logger.Debug("Sweep found no due steps")
	}
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (s *Sweeper) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			s.logger.Info("Reloading configuration...")
			s.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			s.logger.Info("Shutting down gracefully...")
			s.stop(cancel)
			os.Exit(0)
		default:
			s.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart handles service restart with exponential backoff.
func (s *Sweeper) restart(ctx context.Context, cancel context.CancelFunc) {
	s.restartCount++
	newCtx := context.WithoutCancel(ctx)

	s.stop(cancel)

	if s.restartCount > 5 {
		s.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(s.restartCount) * time.Second
	s.logger.Info("Restarting sweeper...", "backoff", backoff)
	time.Sleep(backoff)

	if err := s.Start(newCtx); err != nil {
		s.logger.Error("Failed to restart sweeper", "error", err)
		os.Exit(1)
	}
}

func (s *Sweeper) stop(cancel context.CancelFunc) {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}

	cancel()
}
