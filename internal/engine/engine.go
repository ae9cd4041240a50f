// Package engine wires together the Store, Queue, Fetcher, Differ, and
// Checker into the fixed-cadence daemon loop described in spec.md §4.8:
// open the Store, ensure schema, recompute Person totals, then run
// cycles on a roughly 97.08-second cadence until a termination signal
// or three consecutive cycle failures.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelhawk/hawk/internal/checker"
	"github.com/pixelhawk/hawk/internal/config"
	"github.com/pixelhawk/hawk/internal/daemonrunner"
	"github.com/pixelhawk/hawk/internal/differ"
	"github.com/pixelhawk/hawk/internal/fetcher"
	"github.com/pixelhawk/hawk/internal/queue"
	"github.com/pixelhawk/hawk/internal/store"
)

// daemonSignals are the signals that trigger a graceful shutdown
// (spec.md §4.8 "On termination signal").
var daemonSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Engine owns the process's single Store handle and drives the Checker
// on a fixed cadence.
type Engine struct {
	cfg     *config.Engine
	store   *store.Store
	checker *checker.Checker
	log     *slog.Logger
	lock    io.Closer

	metrics *metrics
}

// Open opens the Store at cfg.DBPath, ensures its schema, recomputes
// the cached totals of every Person who owns at least one non-INACTIVE
// Project, and wires the Checker pipeline. A Person whose Projects are
// all INACTIVE keeps its stored totals unchanged. The
// returned Engine holds an exclusive lock on the nest root; Close
// releases it.
func Open(cfg *config.Engine, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	lock, err := daemonrunner.AcquireNestLock(cfg.NestRoot)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire nest lock: %w", err)
	}

	for _, dir := range []string{cfg.TilesDir(), cfg.ProjectsDir(), cfg.SnapshotsDir(), cfg.NestRoot + "/data"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = lock.Close()
			return nil, fmt.Errorf("engine: prepare nest directories: %w", err)
		}
	}

	s, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	if err := recomputeAllPersonTotals(context.Background(), s); err != nil {
		log.Warn("startup person-totals recompute failed, continuing", "error", err)
	}

	q := queue.New(s)
	f := fetcher.New(cfg.UpstreamBaseURL, cfg.TilesDir(), cfg.ConnectTimeout, cfg.TotalTimeout, log)
	d := differ.New(s, cfg.NestRoot, cfg.TilesDir(), log)
	c := checker.New(s, q, f, d, log)
	c.SetMaxConsecutiveErrors(cfg.MaxConsecutiveErrors)

	m, err := newMetrics()
	if err != nil {
		log.Warn("metrics initialization failed, continuing without them", "error", err)
		m = noopMetrics()
	}

	return &Engine{cfg: cfg, store: s, checker: c, log: log, lock: lock, metrics: m}, nil
}

func recomputeAllPersonTotals(ctx context.Context, s *store.Store) error {
	persons, err := s.ListActivePersons(ctx)
	if err != nil {
		return err
	}
	for _, p := range persons {
		if err := s.RecomputePersonTotals(ctx, p.ID); err != nil {
			return fmt.Errorf("recompute totals for person %d: %w", p.ID, err)
		}
	}
	return nil
}

// Close releases the Store, the nest lock, and flushes metrics. Safe
// to call once.
func (e *Engine) Close() error {
	metricsErr := e.metrics.shutdown(context.Background())
	storeErr := e.store.Close()
	lockErr := e.lock.Close()
	if storeErr != nil {
		return storeErr
	}
	if lockErr != nil {
		return lockErr
	}
	return metricsErr
}

// Run blocks, executing cycles on the configured cadence until ctx is
// canceled, a termination signal arrives, or the Checker's
// consecutive-error count reaches the configured threshold
// (cfg.MaxConsecutiveErrors, default checker.MaxConsecutiveErrors). It
// always finishes an in-flight cycle before returning (spec.md §4.8).
func (e *Engine) Run(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, daemonSignals...)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interval := e.cfg.CycleInterval
	if interval <= 0 {
		interval = config.DefaultCycleInterval
	}

	e.log.Info("engine started", "cycle_interval", interval, "nest_root", e.cfg.NestRoot)

	nextStart := time.Now()
	for {
		cycleErr := e.runOneCycle(ctx)
		if cycleErr != nil {
			e.log.Warn("cycle error", "error", cycleErr)
		}
		if e.checker.ShouldExit() {
			e.log.Warn("consecutive cycle failures reached threshold, exiting", "consecutive_errors", e.checker.ConsecutiveErrors())
			return fmt.Errorf("engine: %d consecutive cycle failures", e.checker.ConsecutiveErrors())
		}

		// Next cycle starts `interval` after the previous one *started*;
		// if the cycle ran long, this wait collapses to zero (spec.md
		// §4.8 "If a cycle takes longer than the interval, the next
		// cycle starts immediately").
		nextStart = nextStart.Add(interval)
		wait := time.Until(nextStart)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			e.log.Info("context canceled, shutting down")
			return nil
		case sig := <-sigChan:
			e.log.Info("received termination signal, shutting down", "signal", sig)
			return nil
		case <-time.After(wait):
		}
	}
}

func (e *Engine) runOneCycle(ctx context.Context) error {
	start := time.Now()
	err := e.checker.RunCycle(ctx)
	elapsed := time.Since(start)
	e.metrics.recordCycle(ctx, elapsed, e.checker.ConsecutiveErrors())
	return err
}
