package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/reef/config"
	"github.com/pthm-cable/reef/sim"
	"github.com/pthm-cable/reef/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for snapshot files")
	snapshotEvery := flag.Int("snapshot-every", 0, "Save a snapshot every N ticks (0 = never)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 10000, "Stop after N ticks")
	restorePath := flag.String("restore", "", "Snapshot file to resume from")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	opts := sim.Options{
		Seed:        rngSeed,
		LogStats:    *logStats,
		SnapshotDir: *snapshotDir,
		OutputDir:   *outputDir,
	}

	s, err := sim.New(opts)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if *restorePath != "" {
		snap, err := telemetry.LoadSnapshot(*restorePath)
		if err != nil {
			slog.Error("failed to load snapshot", "error", err)
			os.Exit(1)
		}
		if err := s.Restore(snap); err != nil {
			slog.Error("failed to restore snapshot", "error", err)
			os.Exit(1)
		}
		slog.Info("resumed from snapshot", "path", *restorePath, "tick", s.Tick())
	}

	slog.Info("starting simulation",
		"seed", rngSeed,
		"max_ticks", *maxTicks,
	)

	for int(s.Tick()) < *maxTicks {
		if err := s.Step(); err != nil {
			slog.Error("simulation step failed", "error", err)
			os.Exit(1)
		}
		if *snapshotEvery > 0 && *snapshotDir != "" && int(s.Tick())%*snapshotEvery == 0 {
			path, err := s.SaveSnapshot()
			if err != nil {
				slog.Error("failed to save snapshot", "error", err)
			} else {
				slog.Info("snapshot saved", "path", path, "tick", s.Tick())
			}
		}
	}
	slog.Info("max ticks reached", "tick", s.Tick())
}
