package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/config"
	"github.com/trackworks/dcc-pilot/pkg/database"
	"github.com/trackworks/dcc-pilot/pkg/fleet"
	"github.com/trackworks/dcc-pilot/pkg/logger"
	"github.com/trackworks/dcc-pilot/pkg/metrics"
	"github.com/trackworks/dcc-pilot/pkg/station"
	"github.com/trackworks/dcc-pilot/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("DCC-Pilot %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate only mode
	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Info("Starting DCC-Pilot",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("config_file", *configFile))

	web.SetVersionInfo(version, commit, buildTime)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Diagnostic capture trail; operator events land here too.
	trail := capture.NewTrail(cfg.Capture.Depth)
	log.SetEventSink(func(category, object, action, details string) {
		trail.Record(category, action, strings.TrimSpace(object+" "+details))
	})

	// Database and repositories
	db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log.WithComponent("database"))
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	fleetRepo := database.NewFleetRepository(db.GetDB())
	stationRepo := database.NewStationRepository(db.GetDB())

	var captureWriter *database.CaptureWriter
	if cfg.Capture.Persist {
		captureRepo := database.NewCaptureRepository(db.GetDB())
		captureWriter = database.NewCaptureWriter(captureRepo, cfg.Capture.Depth, log.WithComponent("capture"))
		captureWriter.Start()
		trail.AddListener(captureWriter.Listener())
	}

	// Metrics collector
	metricsCollector := metrics.NewCollector()
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	// Generator channel: saved pin assignment wins over the static
	// configuration, the operator may have reassigned the pins at runtime.
	pinA, pinB := cfg.GPIO.PinA, cfg.GPIO.PinB
	if a, b, found, err := stationRepo.LoadPins(); err != nil {
		log.Warn("Failed to load saved pin assignment", logger.Error(err))
	} else if found {
		pinA, pinB = a, b
	}

	st := station.New(station.Config{
		Transport:     cfg.Station.Transport,
		Executable:    cfg.Station.Executable,
		SerialDevice:  cfg.Station.SerialDevice,
		SerialBaud:    cfg.Station.SerialBaud,
		LivenessTicks: cfg.Station.LivenessTicks,
		PinA:          pinA,
		PinB:          pinB,
	}, trail, metricsCollector, log.WithComponent("station"))
	if err := st.Initialize(); err != nil {
		// Not fatal: the supervisor keeps retrying.
		log.Error("Generator launch failed", logger.Error(err))
	}
	defer st.Shutdown()

	// Fleet registries, restored from the database
	fl := fleet.New(st, log.WithComponent("fleet"))
	if saved, err := fleetRepo.Load(); err != nil {
		log.Warn("Failed to load fleet configuration", logger.Error(err))
	} else {
		fl.LoadConfig(saved)
	}

	// Web surface
	hub := web.NewWebSocketHub(log.WithComponent("websocket"))
	trail.AddListener(hub.BroadcastCaptureRecord)

	api := web.NewAPI(st, fl, trail, hub, cfg.Server.Layout, log.WithComponent("api"))
	api.Persist = func() {
		if err := fleetRepo.Save(fl.ExportConfig()); err != nil {
			log.Error("Failed to save fleet configuration", logger.Error(err))
		}
		a, b := st.ExportConfig()
		if err := stationRepo.SavePins(a, b); err != nil {
			log.Error("Failed to save pin assignment", logger.Error(err))
		}
	}

	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web, api, hub, log.WithComponent("web"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	log.Info("DCC-Pilot initialized",
		logger.String("server_name", cfg.Server.Name),
		logger.String("layout", cfg.Server.Layout))

	// Supervision loop: drive the station's periodic maintenance and
	// push readiness changes to websocket clients.
	tick := time.Duration(cfg.Station.TickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastReadiness := st.Readiness()
	lastAlive := st.Alive()
	lastSaved := fl.Revision()

	for {
		select {
		case now := <-ticker.C:
			st.PeriodicTick(now)

			if readiness, alive := st.Readiness(), st.Alive(); readiness != lastReadiness || alive != lastAlive {
				hub.BroadcastReadiness(readiness.String(), alive)
				lastReadiness, lastAlive = readiness, alive
			}

			// Autosave the registries when they changed since the
			// last snapshot.
			if revision := fl.Revision(); revision != lastSaved {
				if err := fleetRepo.Save(fl.ExportConfig()); err != nil {
					log.Error("Failed to save fleet configuration", logger.Error(err))
				} else {
					lastSaved = revision
				}
			}

		case sig := <-sigChan:
			log.Info("Received shutdown signal", logger.String("signal", sig.String()))
			cancel()
			if captureWriter != nil {
				captureWriter.Stop()
			}
			wg.Wait()
			log.Info("DCC-Pilot stopped")
			return
		}
	}
}
