package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/api"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/dispatcher"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/episode"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/frame"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/influx"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/input"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instance"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/monitor"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/navigator"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/resolver"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/sampler"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/session"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/transport"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/worker"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

const influxBackupName = "influx_backup.log.gz"

// server holds what outlives a single emulator session.
type server struct {
	engine  config.EngineConfig
	monitor config.MonitorConfig
	session *session.Context
	logger  *slog.Logger
	rec     *worker.Manager
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := config.GetEngineConfig()
	sc := session.NewContext(engine.InstanceID, engine.Mode)

	l, err := setupLogging(appName+"_"+engine.InstanceID, sc)
	if err != nil {
		return err
	}
	defer l.close()
	logger := l.logger
	logger.Info("starting", "version", Version, "instance", engine.InstanceID, "mode", engine.Mode)

	backend, err := storage.NewBackend(config.GetStorageConfig(), storage.Dependencies{
		DB:         config.GetDBConfig(),
		LogManager: l.manager,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if backend != nil {
		if err := backend.Init(); err != nil {
			return fmt.Errorf("storage init: %w", err)
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Error("closing storage", "error", err)
			}
		}()
	}

	deps := worker.Dependencies{Backend: backend, Logger: logger}
	if ic := config.GetInfluxConfig(); ic.Enabled {
		im := influx.NewManager(l.zerolog, ic, filepath.Join(l.dir, influxBackupName))
		if err := im.Connect(ctx); err != nil {
			logger.Warn("influx disabled", "error", err)
		} else {
			deps.Telemetry = im
			defer im.Close()
		}
	}
	if ac := config.GetAPIConfig(); ac.APIKey != "" {
		client := api.New(ac.ServerURL, ac.APIKey)
		if err := client.Healthcheck(); err != nil {
			logger.Warn("archive service unreachable, uploads will be retried per episode", "error", err)
		}
		deps.Uploader = client
		defer client.Close()
	}

	recDispatcher, err := dispatcher.New(logger)
	if err != nil {
		return fmt.Errorf("recording dispatcher: %w", err)
	}
	defer recDispatcher.Close()
	rec := worker.NewManager(deps)
	rec.RegisterHandlers(recDispatcher)

	mc := config.GetMonitorConfig()
	monDeps := monitor.Dependencies{
		Session:   sc,
		Recorder:  rec,
		Logger:    logger,
		StatusDir: mc.StatusDir,
		Interval:  mc.StatusInterval,
	}
	if withDB, ok := backend.(interface{ DB() *gorm.DB }); ok {
		monDeps.DB = withDB.DB()
	}
	mon := monitor.NewService(monDeps)

	srv := &server{engine: engine, monitor: mc, session: sc, logger: logger, rec: rec}

	g, gctx := errgroup.WithContext(ctx)
	if addr := config.GetOTelConfig().MetricsAddr; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, l, logger) })
	}
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return srv.loop(gctx) })

	err = g.Wait()
	logger.Info("stopped", "error", err, "dropped", rec.Dropped(), "failed", rec.Failed(), "uploaded", rec.Uploaded())
	return err
}

func serveMetrics(ctx context.Context, addr string, l *logs, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", l.provider.MetricsHandler())
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(sctx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// loop runs sessions until ctx ends. A session that fails or stalls is torn
// down and a new one starts after the relaunch delay.
func (s *server) loop(ctx context.Context) error {
	for {
		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.session.SetPhase(core.PhaseRecovering)
		s.logger.Error("session ended, relaunching", "error", err, "delay", s.monitor.RelaunchDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.monitor.RelaunchDelay):
		}
	}
}

// runSession launches the emulator, attaches the sampler and serves episodes
// over MQTT until something fails.
func (s *server) runSession(ctx context.Context) error {
	logger := s.logger
	engine := s.engine

	smp := sampler.New(core.DefaultAddressTable(),
		sampler.WithStepSize(engine.StepSize),
		sampler.WithLogger(logger),
		sampler.WithResolver(resolver.New(resolver.DefaultConfig(), logger)),
	)
	rt := instance.New(config.GetEmulatorConfig(), smp, logger)
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := rt.Stop(); err != nil {
			logger.Warn("stopping instance", "error", err)
		}
	}()

	ic := config.GetInputConfig()
	devCfg := input.DefaultDeviceConfig()
	if ic.Name != "" {
		devCfg.Name = ic.Name
	}
	dev, err := input.OpenUInput(devCfg)
	if err != nil {
		return fmt.Errorf("virtual pad: %w", err)
	}
	pad := input.NewPad(dev, ic.Hold)
	defer pad.Close()

	cc := config.GetCaptureConfig()
	frames := frame.NewScreenSource(cc.X, cc.Y, cc.Width, cc.Height, logger)
	nav := navigator.New(smp, pad,
		navigator.WithPollInterval(engine.NavPoll),
		navigator.WithSettleDelay(engine.SettleDelay),
		navigator.WithKeyGap(engine.KeyGap),
		navigator.WithLogger(logger),
	)

	d, err := dispatcher.New(logger)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer d.Close()

	mq := config.GetMQTTConfig()
	adapter := transport.New(transport.Config{
		Broker:     mq.Broker(),
		Username:   mq.Username,
		Password:   mq.Password,
		Prefix:     mq.Prefix,
		InstanceID: engine.InstanceID,
		KeepAlive:  mq.KeepAlive,
		Timeout:    mq.Timeout,
	}, d, logger)

	deps := episode.Dependencies{
		Sampler:    smp,
		Navigator:  nav,
		Publisher:  adapter,
		Frames:     frames,
		Pad:        pad,
		Relauncher: rt,
		Recorder:   s.rec,
		Tracker:    s.session,
		Logger:     logger,
	}
	if engine.Validate {
		m, err := frame.LoadReferences(engine.ReferencesDir, engine.MatchThreshold)
		if err != nil {
			return fmt.Errorf("loading track references: %w", err)
		}
		deps.Validator = &frame.Validator{Source: frames, Matcher: m, Logger: logger}
	}
	orch := episode.New(deps, episode.Config{
		InstanceID:   engine.InstanceID,
		Mode:         engine.Mode,
		Resolve:      engine.Resolve,
		Validate:     engine.Validate,
		AutoStart:    engine.AutoStart,
		FreeRunRate:  engine.FreeRunRate,
		PollInterval: engine.PollInterval,
		Setup:        config.GetGameSetup(),
	})
	transport.RegisterHandlers(d, orch)

	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return rt.Wait(gctx) })
	g.Go(func() error {
		return monitor.NewWatchdog(adapter, s.monitor.WatchdogTimeout, logger).Watch(gctx)
	})
	return g.Wait()
}
