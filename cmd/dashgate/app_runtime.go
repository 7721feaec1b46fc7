package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Resinat/Dashgate/internal/api"
	"github.com/Resinat/Dashgate/internal/buildinfo"
	"github.com/Resinat/Dashgate/internal/calllog"
	"github.com/Resinat/Dashgate/internal/config"
	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/gating"
	"github.com/Resinat/Dashgate/internal/health"
	"github.com/Resinat/Dashgate/internal/metrics"
	"github.com/Resinat/Dashgate/internal/mode"
	"github.com/Resinat/Dashgate/internal/rolling"
	"github.com/Resinat/Dashgate/internal/sensor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type dashgateApp struct {
	envCfg  *config.EnvConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	callDB  *calllog.Repo
	callSvc *calllog.Service
	watcher *health.Watcher
	server  *api.Server
}

func run() error {
	envFile := os.Getenv("DASHGATE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(envCfg.LogLevel, envCfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := newDashgateApp(envCfg, logger, time.Now())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", formatListenAddress(envCfg.ListenAddress, envCfg.Port))
	if err != nil {
		app.shutdown(context.Background())
		return fmt.Errorf("listen: %w", err)
	}

	serverErrCh := app.startServer(ln)
	runtimeErr := waitForShutdown(logger, serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

// newLogger builds a zap logger for the given level and format.
// format is "json" or "console".
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// newDashgateApp wires every component and starts the background
// services. Nothing listens until startServer is called.
func newDashgateApp(envCfg *config.EnvConfig, logger *zap.Logger, startedAt time.Time) (*dashgateApp, error) {
	app := &dashgateApp{envCfg: envCfg, logger: logger}

	db, err := calllog.OpenDB(calllog.MemoryDSN)
	if err != nil {
		return nil, fmt.Errorf("call log: %w", err)
	}
	app.callDB = calllog.NewRepo(db, logger.Named("calllog"))
	app.callSvc = calllog.NewService(calllog.ServiceConfig{
		Repo:          app.callDB,
		QueueSize:     envCfg.CallLogQueueSize,
		FlushBatch:    envCfg.CallLogFlushBatchSize,
		FlushInterval: envCfg.CallLogFlushInterval,
		RetainRows:    envCfg.CallLogRetainRows,
		Logger:        logger.Named("calllog"),
	})

	buf := rolling.NewBuffer(rolling.DefaultCapacity)
	app.metrics = metrics.New()
	app.metrics.RegisterBufferGauge(buf.Len)
	app.metrics.RegisterCallLogDropped(app.callSvc.Dropped)

	gw := downstream.NewGateway(envCfg.Targets, envCfg.RequestTimeout,
		downstream.WithForwardHeaders(envCfg.ForwardHeaders),
		downstream.WithObserver(app.metrics),
		downstream.WithObserver(app.callSvc),
		downstream.WithLogger(logger.Named("downstream")),
	)
	resolver := mode.NewResolver(gw, envCfg.ModeTimeout,
		mode.WithLogger(logger.Named("mode")),
		mode.WithFallbackHook(app.metrics.ModeFallback),
	)
	dispatcher := gating.NewDispatcher(resolver, gw,
		gating.WithLogger(logger.Named("gating")),
		gating.WithSkipHook(app.metrics.GatedSkipped),
	)
	app.watcher, err = health.NewWatcher(
		health.NewAggregator(gw, envCfg.HealthTimeout),
		envCfg.HealthWatchSchedule,
		envCfg.HealthCacheTTL,
		health.WithWatcherLogger(logger.Named("health")),
		health.WithResultHook(app.metrics.ObserveProbe),
	)
	if err != nil {
		_ = app.callDB.Close()
		return nil, fmt.Errorf("health watcher: %w", err)
	}

	app.server = api.NewServer(envCfg.ListenAddress, envCfg.Port, api.Deps{
		Buffer:           buf,
		Generator:        sensor.NewGenerator(envCfg.SensorID),
		Gateway:          gw,
		Resolver:         resolver,
		Dispatcher:       dispatcher,
		Watcher:          app.watcher,
		CallLog:          app.callDB,
		Metrics:          app.metrics,
		SystemInfo:       buildinfo.Current(startedAt),
		Logger:           logger.Named("api"),
		SerialNumber:     envCfg.SerialNumber,
		ServiceAvailable: envCfg.ServiceAvailable,
		MaxBodyBytes:     int64(envCfg.APIMaxBodyBytes),
	})

	app.callSvc.Start()
	app.watcher.Start()
	logger.Info("dashgate initialized",
		zap.String("version", buildinfo.Version),
		zap.String("auth_url", envCfg.Targets.Auth),
		zap.String("flags_url", envCfg.Targets.Flags),
		zap.String("plots_url", envCfg.Targets.Plots),
		zap.String("reports_url", envCfg.Targets.Reports),
	)
	return app, nil
}

func (a *dashgateApp) startServer(ln net.Listener) <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		a.logger.Info("dashgate server starting", zap.String("url", "http://"+ln.Addr().String()))
		err := a.server.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		serverErrCh <- fmt.Errorf("dashgate server: %w", err)
	}()
	return serverErrCh
}

func waitForShutdown(logger *zap.Logger, serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	case err := <-serverErrCh:
		logger.Error("server runtime error, shutting down", zap.Error(err))
		return err
	}
}

func formatListenAddress(listenAddress string, port int) string {
	return net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

// shutdown stops the server first, then the watcher, then the call log
// sink so queued records are flushed before the database closes.
func (a *dashgateApp) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("server shutdown error", zap.Error(err))
	}
	a.logger.Info("dashgate server stopped")

	a.watcher.Stop()
	a.logger.Info("health watcher stopped")

	a.callSvc.Stop()
	if err := a.callDB.Close(); err != nil {
		a.logger.Warn("call log close error", zap.Error(err))
	}
	a.logger.Info("call log closed")
}
