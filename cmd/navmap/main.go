package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/navmap/internal/api"
	"github.com/banshee-data/navmap/internal/config"
	"github.com/banshee-data/navmap/internal/db"
	"github.com/banshee-data/navmap/internal/export"
	"github.com/banshee-data/navmap/internal/fsutil"
	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/httputil"
	"github.com/banshee-data/navmap/internal/mapstate"
	"github.com/banshee-data/navmap/internal/robot"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/timeutil"
	"github.com/banshee-data/navmap/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to JSON configuration file")
	devMode    = flag.Bool("dev", false, "Run against the built-in robot simulator")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Command journal database path (overrides config)")
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrate(os.Args[2:])
			return
		case "healthcheck":
			runHealthcheck(os.Args[2:])
			return
		case "version":
			fmt.Printf("navmap %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
			return
		}
	}

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyOverrides(cfg)
	if cfg.GetListen() == "" {
		log.Fatal("Listen address is required")
	}

	journal, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer journal.Close()

	writer, err := export.NewWriter(fsutil.OSFileSystem{}, export.Paths{
		Dir:    cfg.GetExportDir(),
		Image:  cfg.GetMapImagePath(),
		Bitmap: cfg.GetMapBitmapPath(),
	})
	if err != nil {
		log.Fatalf("failed to prepare export directory: %v", err)
	}

	clock := timeutil.RealClock{}
	state := telemetry.NewState(clock)
	hub := telemetry.NewHub(state, telemetry.Config{
		Interval:    cfg.GetTelemetryInterval(),
		SendTimeout: cfg.GetSendTimeout(),
		Clock:       clock,
	})

	var (
		sink   robot.CommandSink
		source robot.DataSource
	)
	if cfg.GetDevMode() {
		simCfg := robot.DefaultSimulatorConfig()
		simCfg.Interval = cfg.GetSimInterval()
		sim := robot.NewSimulator(simCfg)
		sink, source = sim, sim
		log.Printf("dev mode: using the built-in robot simulator")
	} else {
		sink = robot.LogSink{}
		log.Printf("no robot bridge attached; commands will only be logged")
	}

	maps := mapstate.NewManager(grid.NewStore(), mapstate.Options{
		Thickness: cfg.GetWallThickness(),
		Exporter:  writer,
		Publisher: sink,
		Notifier:  hub,
	})
	feed := robot.NewFeed(cfg.GetFeedBuffer())
	ingestor := robot.NewIngestor(feed, maps, state)

	// Create a wait group for the HTTP server, robot feed, and ingest routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Stream(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("robot data source failed: %v", err)
			}
			log.Print("robot data routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ingest routine failed: %v", err)
		}
		log.Print("ingest routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.Options{
			Maps:         maps,
			State:        state,
			Hub:          hub,
			Sink:         sink,
			Journal:      journal,
			Clock:        clock,
			HistoryLimit: cfg.GetCommandHistoryLimit(),
		})

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only on loopback or over Tailscale)
		journal.AttachAdminRoutes(mux)
		srv.AttachAdminRoutes(mux)
		mux.Handle("/", srv.Handler())

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// WebSocket connections are hijacked, so Shutdown does not wait for them
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	st := ingestor.Stats()
	log.Printf("Graceful shutdown complete (grids=%d rejected=%d telemetry=%d)", st.Grids, st.RejectedGrids, st.Telemetry)
}

// loadConfig reads path, falling back to built-in defaults when the default
// config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultConfigPath && errors.Is(err, os.ErrNotExist) {
		log.Printf("%s not found, using built-in defaults", path)
		return &config.Config{}, nil
	}
	return nil, err
}

// applyOverrides copies explicitly set command-line flags onto cfg.
func applyOverrides(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *devMode {
		cfg.DevMode = devMode
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", config.DefaultDBPath, "Command journal database path")
	fs.Usage = func() { db.PrintMigrateHelp(os.Stderr) }
	_ = fs.Parse(args)

	if err := db.RunMigrateCommand(fs.Args(), *path, os.Stdout); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func runHealthcheck(args []string) {
	fs := flag.NewFlagSet("healthcheck", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost"+config.DefaultListen, "Base URL of a running navmap server")
	timeout := fs.Duration("timeout", 3*time.Second, "Request timeout")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var health struct {
		Status    string `json:"status"`
		MapLoaded bool   `json:"map_loaded"`
	}
	url := strings.TrimSuffix(*addr, "/") + "/healthz"
	if err := httputil.GetJSON(ctx, httputil.NewStandardClient(nil), url, &health); err != nil {
		log.Fatalf("healthcheck failed: %v", err)
	}
	fmt.Printf("status=%s map_loaded=%t\n", health.Status, health.MapLoaded)
}
