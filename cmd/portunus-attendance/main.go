package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/config"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/db"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/health"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/device"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/event"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/frame"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store/kv"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file")
		httpAddr   = pflag.String("http-addr", "", "HTTP listen address (overrides config)")
		grpcAddr   = pflag.String("grpc-addr", "", "gRPC health listen address (overrides config)")
		dbPath     = pflag.String("db", "", "SQLite ledger path (overrides config)")
		noMonitor  = pflag.Bool("no-monitor", false, "do not start the device stream on boot")
		showVer    = pflag.BoolP("version", "v", false, "print version and exit")
	)
	pflag.Parse()

	if *showVer {
		fmt.Println("portunus-attendance", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *noMonitor {
		cfg.Monitor.AutoStart = false
	}

	logger := newLogger(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("portunus-attendance exited")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Str("service", "portunus-attendance").Logger()
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	lastWeekday, err := cfg.LastWeekday()
	if err != nil {
		return err
	}
	source, _ := event.ParseTimestampSource(cfg.Attendance.TimestampSource)
	clk := clock.Real()

	// Ledger
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logger)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	writer := db.NewWorker(sqlDB)
	defer writer.Close()

	ledger := sqlite.NewLedger(sqlDB, writer, loc, clk)

	// Journal (optional)
	var journal store.Journal
	if cfg.Journal.Path != "" {
		j, err := kv.Open(kv.Options{Path: cfg.Journal.Path}, logger.With().Str("component", "journal").Logger())
		if err != nil {
			return err
		}
		defer j.Close()
		journal = j

		pruner := service.NewJournalPruner(j, service.PrunerConfig{
			RetentionDays: cfg.Journal.RetentionDays,
			IntervalHours: cfg.Journal.PruneIntervalHours,
		}, clk, logger)
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	// Notifications
	hub := publish.NewHub()
	defer hub.Close()
	sinks := publish.Multi{hub}

	var mqttSink *publish.MQTTSink
	if cfg.MQTT.Broker != "" {
		sink, err := publish.DialMQTT(publish.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		}, logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			// The broker is an optional mirror; run without it.
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt disabled")
		} else {
			defer sink.Close()
			mqttSink = sink
			sinks = append(sinks, sink)
		}
	}

	var grpcSrv *health.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = health.NewServer(cfg.GRPCAddr, logger)
		sinks = append(sinks, health.NewReporter(grpcSrv.Health()))
	}

	// Attendance
	dir := service.NewDirectory(ledger, service.DirectoryConfig{
		DefaultDepartment:       cfg.Attendance.DefaultDepartment,
		MultiSegmentDepartments: cfg.Attendance.MultiSegmentDepartments,
	})
	resolver := service.NewResolver(ledger, dir, service.MultiSegmentRules(lastWeekday), loc)
	guard := service.NewDuplicateGuard(ledger, cfg.Attendance.DuplicateWindow)

	// The refresher sits behind the processor and supervisor so every
	// record and connection change pushes a fresh dashboard.
	var pub publish.Publisher = sinks
	fanout := publish.PublisherFunc(func(n publish.Notification) { pub.Publish(n) })
	processor := service.NewProcessor(service.ProcessorDeps{
		Directory: dir,
		Records:   ledger,
		Resolver:  resolver,
		Guard:     guard,
		Publisher: fanout,
		Journal:   journal,
		Clock:     clk,
		Location:  loc,
	}, logger)

	client, err := device.NewClient(device.Config{
		BaseURL:       cfg.Device.BaseURL,
		Username:      cfg.Device.Username,
		Password:      cfg.Device.Password,
		StreamPath:    cfg.Device.StreamPath,
		StatusPath:    cfg.Device.StatusPath,
		HeaderTimeout: cfg.Device.HeaderTimeout,
		ProbeTimeout:  cfg.Device.ProbeTimeout,
	})
	if err != nil {
		return err
	}

	framing := frame.Config{Mode: frame.Naive, MaxBytes: cfg.Monitor.MaxFrameBytes}
	if cfg.Monitor.StringAwareFraming {
		framing.Mode = frame.StringAware
	}
	supervisor := service.NewSupervisor(service.SupervisorConfig{
		BaseDelay:      cfg.Monitor.BaseDelay,
		MaxDelay:       cfg.Monitor.MaxDelay,
		MaxRetries:     cfg.Monitor.MaxRetries,
		Cooldown:       cfg.Monitor.Cooldown,
		LivenessWindow: cfg.Monitor.LivenessWindow,
		ChunkSize:      cfg.Monitor.ChunkSize,
		Framing:        framing,
	}, client, event.NewDecoder(clk, loc, source), processor, fanout, clk, logger)

	dashboard := service.NewDashboard(ledger, dir, supervisor.Session(), clk, loc, lastWeekday)
	refresher := service.NewRefresher(dashboard, hub, logger)
	pub = append(sinks, refresher)
	go refresher.Run(ctx)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger,
		Addr:        cfg.HTTPAddr,
		Monitor:     supervisor,
		Prober:      client,
		Dashboard:   dashboard,
		Hub:         hub,
		Clock:       clk,
		Journal:     journal,
		MQTT:        mqttSink,
		BaseContext: ctx,
	})

	errc := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	if grpcSrv != nil {
		go func() {
			if err := grpcSrv.Serve(ctx); err != nil {
				errc <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	if cfg.Monitor.AutoStart {
		if err := supervisor.Start(ctx); err != nil {
			return err
		}
		logger.Info().Str("device", client.StreamURL()).Msg("monitoring started")
	} else {
		logger.Info().Msg("monitoring not started; POST /v1/monitoring/start to begin")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errc:
		logger.Error().Err(runErr).Msg("server failed, shutting down")
	}
	stop()

	if err := supervisor.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
		logger.Warn().Err(err).Msg("stop monitor")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return runErr
}
