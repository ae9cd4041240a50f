// Package checker drives one polling cycle (spec.md §4.7): ask the
// Queue for a tile, fetch it, and if it changed, run the Differ against
// every overlapping non-INACTIVE Project. It also owns the
// consecutive-error counter the Engine watches to decide whether to
// exit.
package checker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pixelhawk/hawk/internal/differ"
	"github.com/pixelhawk/hawk/internal/fetcher"
	"github.com/pixelhawk/hawk/internal/queue"
	"github.com/pixelhawk/hawk/internal/store"
)

// MaxConsecutiveErrors is the fatal threshold from spec.md §4.7: three
// complete-cycle failures in a row and the Engine exits.
const MaxConsecutiveErrors = 3

// Checker runs cycles against a Store, pulling tiles from a Queue,
// checking them with a Fetcher, and diffing affected Projects with a
// Differ.
type Checker struct {
	store   *store.Store
	queue   *queue.Queue
	fetcher *fetcher.Fetcher
	differ  *differ.Differ
	log     *slog.Logger

	consecutiveErrors    int
	maxConsecutiveErrors int
}

// New constructs a Checker wiring together the four leaf components it
// drives. The fatal threshold defaults to MaxConsecutiveErrors; call
// SetMaxConsecutiveErrors to override it from configuration.
func New(s *store.Store, q *queue.Queue, f *fetcher.Fetcher, d *differ.Differ, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{store: s, queue: q, fetcher: f, differ: d, log: log, maxConsecutiveErrors: MaxConsecutiveErrors}
}

// SetMaxConsecutiveErrors overrides the fatal threshold. Values <= 0
// are ignored, leaving the existing threshold in place.
func (c *Checker) SetMaxConsecutiveErrors(n int) {
	if n > 0 {
		c.maxConsecutiveErrors = n
	}
}

// ConsecutiveErrors returns the running count of complete-cycle
// failures since the last success.
func (c *Checker) ConsecutiveErrors() int { return c.consecutiveErrors }

// ShouldExit reports whether the Engine should stop the loop (spec.md
// §4.7 "If it reaches 3, the Engine exits").
func (c *Checker) ShouldExit() bool { return c.consecutiveErrors >= c.maxConsecutiveErrors }

// RunCycle executes exactly one polling cycle. It never returns an
// error for per-Project Differ failures (those are logged and
// skipped); it returns an error only for cycle-wide failures such as a
// Store I/O error, which increments the consecutive-error counter.
func (c *Checker) RunCycle(ctx context.Context) error {
	err := c.runCycle(ctx)
	if err != nil {
		c.consecutiveErrors++
		c.log.Warn("cycle failed", "error", err, "consecutive_errors", c.consecutiveErrors)
		return err
	}
	c.consecutiveErrors = 0
	return nil
}

func (c *Checker) runCycle(ctx context.Context) error {
	tile, err := c.queue.Next(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			c.log.Debug("no eligible tile this cycle")
			return nil
		}
		return err
	}

	full, err := c.store.GetTile(ctx, tile.ID)
	if err != nil {
		return err
	}

	result, err := c.fetcher.Fetch(ctx, *full)
	if err != nil {
		return err
	}
	if result.Err != nil {
		c.log.Warn("fetch outcome was non-fatal error", "tile_x", full.X, "tile_y", full.Y, "error", result.Err)
	}

	updated := result.UpdatedTile
	if full.Heat == store.BurningHeat && result.Err == nil {
		// Graduation (spec.md scenario S2): a tile that has never been
		// successfully fetched before leaves the burning bucket the
		// moment it is (a clean 200 or 304). It starts in the hottest
		// temperature bucket; the next redistribution pass resizes
		// buckets to fit it.
		updated.Heat = 1
	}
	if err := c.store.UpsertTile(ctx, updated); err != nil {
		return err
	}
	if !result.Changed {
		return nil
	}

	projects, err := c.store.LookupOverlappingProjects(ctx, result.UpdatedTile.ID)
	if err != nil {
		return err
	}

	for i := range projects {
		project := &projects[i]
		if diffErr := c.differ.Run(ctx, project); diffErr != nil {
			c.log.Warn("differ failed for project", "project_id", project.ID, "error", diffErr)
			continue
		}
	}

	return nil
}
