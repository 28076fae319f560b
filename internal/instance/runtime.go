// Package instance owns the processes behind one game instance: the
// emulator, the debug stub connection and the sampler loop that reads it.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/emulator"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/gdbstub"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// ErrSamplerStopped is reported by Wait when the sampler loop ends on its
// own, usually because the emulator died.
var ErrSamplerStopped = errors.New("sampler loop stopped")

// Process is a running emulator.
type Process interface {
	Terminate() error
}

// Target is an attached debug stub.
type Target interface {
	instrument.Instrumentation
	Handshake(ctx context.Context) error
	Close() error
}

// Sampler is the part of the telemetry sampler the runtime drives.
type Sampler interface {
	Run(ctx context.Context, inst instrument.Instrumentation) error
	Reset()
	WaitSnapshot(ctx context.Context) (core.Snapshot, error)
}

// LaunchFunc starts the emulator.
type LaunchFunc func(ctx context.Context, cfg config.EmulatorConfig, logger *slog.Logger) (Process, error)

// DialFunc attaches to the debug stub.
type DialFunc func(ctx context.Context, addr string, logger *slog.Logger) (Target, error)

// Runtime starts, stops and relaunches the instance processes. It is the
// orchestrator's Relauncher.
type Runtime struct {
	cfg     config.EmulatorConfig
	sampler Sampler
	logger  *slog.Logger
	launch  LaunchFunc
	dial    DialFunc

	mu       sync.Mutex
	proc     Process
	target   Target
	cancel   context.CancelFunc
	done     chan struct{}
	failures chan error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLauncher replaces the emulator launcher.
func WithLauncher(f LaunchFunc) Option {
	return func(r *Runtime) { r.launch = f }
}

// WithDialer replaces the debug stub dialer.
func WithDialer(f DialFunc) Option {
	return func(r *Runtime) { r.dial = f }
}

// New creates a runtime. Nothing starts until Start.
func New(cfg config.EmulatorConfig, s Sampler, logger *slog.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		cfg:      cfg,
		sampler:  s,
		logger:   logger.With("component", "instance"),
		failures: make(chan error, 1),
		launch: func(ctx context.Context, cfg config.EmulatorConfig, logger *slog.Logger) (Process, error) {
			return emulator.Launch(ctx, cfg, logger)
		},
		dial: func(ctx context.Context, addr string, logger *slog.Logger) (Target, error) {
			return gdbstub.Dial(ctx, addr, logger)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the emulator, attaches to it and starts the sampler loop.
// It returns once a first snapshot has been read. The loop lives until Stop
// or until ctx ends.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("instance already started")
	}

	proc, err := r.launch(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("launching emulator: %w", err)
	}
	target, err := r.dial(ctx, r.cfg.GDBAddress, r.logger)
	if err != nil {
		_ = proc.Terminate()
		return fmt.Errorf("attaching: %w", err)
	}
	if err := target.Handshake(ctx); err != nil {
		_ = target.Close()
		_ = proc.Terminate()
		return fmt.Errorf("gdb handshake: %w", err)
	}

	r.sampler.Reset()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.proc, r.target, r.cancel, r.done = proc, target, cancel, done

	go func() {
		defer close(done)
		err := r.sampler.Run(runCtx, target)
		if runCtx.Err() != nil {
			return
		}
		select {
		case r.failures <- fmt.Errorf("%w: %v", ErrSamplerStopped, err):
		default:
		}
	}()

	timeout := r.cfg.StartTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	wctx, wcancel := context.WithTimeout(ctx, timeout)
	defer wcancel()
	if _, err := r.sampler.WaitSnapshot(wctx); err != nil {
		r.stopLocked()
		return fmt.Errorf("waiting for telemetry: %w", err)
	}
	r.logger.Info("instance is live")
	return nil
}

// Stop ends the sampler loop, detaches and kills the emulator.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Runtime) stopLocked() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done

	var errs []error
	if err := r.target.Close(); err != nil {
		errs = append(errs, fmt.Errorf("detaching: %w", err))
	}
	if err := r.proc.Terminate(); err != nil {
		errs = append(errs, err)
	}
	r.proc, r.target, r.cancel, r.done = nil, nil, nil, nil

	// a failure of the loop just stopped is stale
	select {
	case <-r.failures:
	default:
	}
	return errors.Join(errs...)
}

// Relaunch tears everything down and starts again.
func (r *Runtime) Relaunch(ctx context.Context) error {
	r.logger.Warn("relaunching instance")
	if err := r.Stop(); err != nil {
		r.logger.Warn("teardown before relaunch", "error", err)
	}
	return r.Start(ctx)
}

// Wait blocks until the sampler loop fails on its own or ctx ends.
func (r *Runtime) Wait(ctx context.Context) error {
	select {
	case err := <-r.failures:
		return err
	case <-ctx.Done():
		return nil
	}
}
