// Command pixelhawk-engine runs the tile-scheduler and diff-pipeline
// monitoring engine described in spec.md: it polls the upstream tile
// backend, detects changes, and maintains per-Project completion
// statistics in a SQLite-backed nest.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixelhawk/hawk/internal/config"
	"github.com/pixelhawk/hawk/internal/engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var nestRoot string

	cmd := &cobra.Command{
		Use:   "pixelhawk-engine",
		Short: "Run the pixel-hawk tile-scheduler and diff-pipeline engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), nestRoot)
		},
	}

	cmd.Flags().StringVar(&nestRoot, "nest-root", "", "root directory for persistent state (overrides PIXELHAWK_NEST_ROOT)")
	return cmd
}

// resolveNestRoot implements spec.md §6 "Process lifecycle": flag wins
// over environment variable, which wins over the current directory.
func resolveNestRoot(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("PIXELHAWK_NEST_ROOT"); env != "" {
		return env
	}
	return "."
}

func run(ctx context.Context, nestRootFlag string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	nestRoot := resolveNestRoot(nestRootFlag)
	cfg, err := config.Load(nestRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	e, err := engine.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			log.Warn("error closing engine", "error", closeErr)
		}
	}()

	return e.Run(ctx)
}
