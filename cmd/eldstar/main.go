package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/eldstar/server/internal/camera"
	"github.com/eldstar/server/internal/config"
	"github.com/eldstar/server/internal/consumer"
	"github.com/eldstar/server/internal/dispatcher"
	"github.com/eldstar/server/internal/influx"
	"github.com/eldstar/server/internal/ingest"
	"github.com/eldstar/server/internal/logging"
	"github.com/eldstar/server/internal/monitor"
	intOtel "github.com/eldstar/server/internal/otel"
	"github.com/eldstar/server/internal/session"
	"github.com/eldstar/server/internal/status"
	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/internal/worker"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - set at build time via ldflags
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

// AppName prefixes log files and identifies the service.
const AppName = "eldstar-server"

func main() {
	os.Exit(run(os.Args[1:]))
}

// app holds everything that has to be torn down on exit.
type app struct {
	logger   *slog.Logger
	zlog     zerolog.Logger
	slogs    *logging.SlogManager
	logFile  *os.File
	otel     *intOtel.Provider
	sessions *session.Context
	start    time.Time
}

func run(args []string) int {
	dryRun := len(args) > 0 && strings.EqualFold(args[0], "dryrun")

	configDir := os.Getenv("ELDSTAR_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}

	a := setupApp(configDir)
	defer a.close()

	a.logger.Info("Starting eldstar server", "version", Version, "build", BuildDate, "dryRun", dryRun)

	srvCfg := config.GetServerConfig()
	srv, err := ingest.New(ingest.Config{
		Address:        srvCfg.Address(),
		AcceptTimeout:  srvCfg.AcceptTimeout,
		ReadBufferSize: srvCfg.ReadBufferSize,
	}, a.logger, a.sessions)
	if err != nil {
		a.logger.Error("Failed to bind ingest listener", "address", srvCfg.Address(), "error", err)
		return 1
	}

	if dryRun {
		srv.Close()
		fmt.Println("dry run completed successfully")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.serve(ctx, stop, srv); err != nil {
		a.logger.Error("Server stopped with error", "error", err)
		return 1
	}
	return 0
}

// setupApp loads config and brings up logging. Failures here are logged
// and the server continues with defaults.
func setupApp(configDir string) *app {
	a := &app{
		slogs:    logging.NewSlogManager(),
		sessions: session.NewContext(),
		start:    time.Now(),
	}
	a.slogs.Setup(nil, "info", nil)
	a.logger = a.slogs.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		a.logger.Error("Failed to create logs directory", "path", logsDir, "error", err)
	} else {
		path := logging.LogFilePath(logsDir, AppName, a.start)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			a.logger.Error("Failed to create/open log file!", "path", path, "error", err)
		} else {
			a.logFile = f
			a.logger.Info("Begin logging in logs directory", "path", path)
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(otelCfg, a.logWriter())
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel = p
			a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGELFWriter(config.GetString("graylog.address"), AppName)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			a.slogs.GELF = w
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	level := config.GetString("logLevel")
	a.slogs.Session = a.sessions
	a.slogs.Setup(a.logWriter(), level, provider)
	a.logger = a.slogs.Logger()
	slog.SetDefault(a.logger)

	a.zlog = logging.NewZerolog(a.logWriter(), level, a.sessions)
	return a
}

// logWriter returns the log file, or nil without one.
func (a *app) logWriter() io.Writer {
	if a.logFile == nil {
		return nil
	}
	return a.logFile
}

// serve runs every component until ctx is done or the ingest server
// fails, then shuts them down in dependency order.
func (a *app) serve(ctx context.Context, cancel context.CancelFunc, srv *ingest.Server) error {
	metrics := a.connectInflux(ctx)
	if metrics != nil {
		defer func() {
			if err := metrics.Close(); err != nil {
				a.logger.Warn("Failed to close influx", "error", err)
			}
		}()
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	backend, err := a.openStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}

	var (
		sink    consumer.Sink
		workers *worker.Manager
	)
	if backend != nil {
		deps := worker.Dependencies{Logger: a.logger}
		if metrics != nil {
			deps.Influx = metrics
		}
		workers = worker.NewManager(deps, backend)
		workers.RegisterHandlers(d)
		sink = d
	}

	consumerCfg := config.GetConsumerConfig()
	target, err := camera.ParseTarget(consumerCfg.Track)
	if err != nil {
		a.logger.Warn("Ignoring invalid tracking target", "track", consumerCfg.Track, "error", err)
	}
	loop := consumer.New(consumer.Config{
		TickRate: consumerCfg.TickRate,
		Track:    target,
		Mirror:   consumerCfg.Mirror,
	}, srv, a.sessions, sink, &camera.Patchback{}, a.logger)

	statusDeps := status.Dependencies{
		Consumer: loop,
		Sessions: a.sessions,
		Backlog:  srv.Backlog,
		Logger:   a.logger,
		Version:  Version,
	}
	if l, ok := backend.(storage.FrameLister); ok {
		statusDeps.Frames = l
	}
	if l, ok := backend.(status.FrameLoader); ok {
		statusDeps.Loader = l
	}
	api := status.New(statusDeps)

	statusCfg := config.GetStatusConfig()
	monDeps := monitor.Dependencies{
		Reporter:   api,
		StatusFile: statusCfg.File,
		Logger:     a.logger,
	}
	if metrics != nil {
		monDeps.Influx = metrics
	}
	mon := monitor.NewService(monDeps)
	if statusCfg.File != "" || metrics != nil {
		mon.Start()
	}

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() { runErr = err })
		cancel()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		fail(srv.Run(ctx))
	}()
	go func() {
		defer wg.Done()
		fail(loop.Run(ctx))
	}()
	if statusCfg.Address != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(api.ListenAndServe(ctx, statusCfg.Address))
		}()
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")
	wg.Wait()

	// ingest and consumer are stopped; drain the storage lane
	mon.Stop()
	d.Close()
	if workers != nil {
		if err := workers.Close(); err != nil {
			a.logger.Error("Failed to end open session", "error", err)
		}
	}
	if backend != nil {
		if err := backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
		if u, ok := backend.(storage.Uploadable); ok && u.GetExportedFilePath() != "" {
			a.logger.Info("Last export", "path", u.GetExportedFilePath(), "frames", u.GetExportMetadata().Frames)
		}
	}
	return runErr
}

func (a *app) connectInflux(ctx context.Context) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(config.GetString("logsDir"), "influx_backup.log.gz")
	m := influx.NewManager(cfg, a.zlog.With().Str("component", "influx").Logger(), backup)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Connect(connectCtx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			a.logger.Error("Failed to set up influx", "error", err)
		}
		return nil
	}
	return m
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.slogs.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	if c, ok := a.slogs.GELF.(io.Closer); ok {
		_ = c.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
