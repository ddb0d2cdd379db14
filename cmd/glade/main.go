// Command glade runs the settlement market simulation.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/glade-market/internal/api"
	"github.com/talgya/glade-market/internal/config"
	"github.com/talgya/glade-market/internal/economy"
	"github.com/talgya/glade-market/internal/engine"
	"github.com/talgya/glade-market/internal/persistence"
)

// keepTicks is how much ledger history survives an autosave prune.
const keepTicks = 7 * engine.TicksPerSimDay

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envPath := flag.String("env", ".env", "dotenv file (ignored if missing)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("Glade settlement market simulation", "seed", cfg.Simulation.Seed)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Storage.DBPath)

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg, logger)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	sim.AddObserver(func(name string) economy.TradeObserver { return db.Ledger(name) })

	startTick, err := lastTick(db)
	if err != nil {
		slog.Error("failed to read saved tick", "error", err)
		os.Exit(1)
	}
	// Rows past the last save belong to ticks this run will replay.
	if err := db.Rewind(startTick); err != nil {
		slog.Error("failed to rewind ledger", "error", err)
		os.Exit(1)
	}
	if startTick > 0 {
		sim.Resume(startTick)
		slog.Info("resuming run", "tick", startTick, "sim_time", engine.SimTime(startTick))
	}

	save := func() error {
		tick := sim.Scheduler.Tick()
		if err := db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
			return err
		}
		return db.Prune(tick, keepTicks)
	}
	if cfg.Simulation.SaveEvery > 0 {
		// Registered after the stats collector, so it sees a finished tick.
		sim.Scheduler.Register(engine.Func("autosave", func(float64) error {
			if sim.Scheduler.Tick()%cfg.Simulation.SaveEvery != 0 {
				return nil
			}
			if err := save(); err != nil {
				slog.Error("autosave failed", "error", err)
			}
			return nil
		}))
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("GLADE_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		DB:       db,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
	}
	if cfg.API.Port > 0 {
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		sim.Scheduler.Stop()
	}()

	fmt.Printf("\nGlade is trading: %d settlements, %d tickables.\n",
		len(sim.Settlements), sim.Scheduler.Len())
	if cfg.API.Port > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runErr := sim.Scheduler.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Warn("API shutdown", "error", err)
	}

	slog.Info("final save...")
	if err := save(); err != nil {
		slog.Error("final save failed", "error", err)
	}

	snap := sim.Snapshot()
	fmt.Printf("Simulation stopped at %s after %s trades (%s rejected orders).\n",
		snap.SimTime, humanize.Comma(int64(snap.TotalTrades)), humanize.Comma(int64(snap.Rejected)))
	if runErr != nil {
		os.Exit(1)
	}
}

// lastTick returns the saved tick, or 0 for a fresh database.
func lastTick(db *persistence.DB) (uint64, error) {
	v, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}
