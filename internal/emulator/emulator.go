// Package emulator starts and stops the emulator process of one instance.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
)

var (
	// ErrExited is returned by Launch when the process ends before the
	// debug stub accepts connections.
	ErrExited = errors.New("emulator exited during startup")
	// ErrStartTimeout is returned by Launch when the debug stub did not come
	// up in time.
	ErrStartTimeout = errors.New("emulator start timed out")
)

const dialPoll = 250 * time.Millisecond

// Process is a running emulator.
type Process struct {
	cfg    config.EmulatorConfig
	cmd    *exec.Cmd
	logger *slog.Logger

	done    chan struct{}
	waitErr error
	once    sync.Once
}

// Command builds the emulator command line. The library dir is put on
// LD_LIBRARY_PATH.
func Command(ctx context.Context, cfg config.EmulatorConfig) *exec.Cmd {
	cmd := exec.CommandContext(ctx, cfg.Path, "-g", cfg.Game)
	cmd.Env = os.Environ()
	if cfg.LibraryPath != "" {
		lib, err := filepath.Abs(cfg.LibraryPath)
		if err != nil {
			lib = cfg.LibraryPath
		}
		cmd.Env = append(cmd.Env, "LD_LIBRARY_PATH="+lib)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Launch starts the emulator and waits until its debug stub accepts TCP
// connections. The window commands run once it does; their failures are
// logged only.
func Launch(ctx context.Context, cfg config.EmulatorConfig, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// the process outlives the launch context; Terminate stops it
	cmd := Command(context.WithoutCancel(ctx), cfg)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start emulator: %w", err)
	}

	p := &Process{cfg: cfg, cmd: cmd, logger: logger, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	logger.Info("emulator started", "pid", p.Pid(), "args", cmd.Args)

	if err := p.waitStub(ctx); err != nil {
		_ = p.Terminate()
		return nil, err
	}
	p.runWindowCommands(ctx)
	return p, nil
}

func (p *Process) waitStub(ctx context.Context) error {
	timeout := p.cfg.StartTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(dialPoll)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", p.cfg.GDBAddress, dialPoll)
		if err == nil {
			_ = conn.Close()
			p.logger.Debug("gdb stub is up", "addr", p.cfg.GDBAddress)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return fmt.Errorf("%w: %v", ErrExited, p.waitErr)
		case <-deadline.C:
			return fmt.Errorf("%w after %s waiting for %s", ErrStartTimeout, timeout, p.cfg.GDBAddress)
		case <-ticker.C:
		}
	}
}

func (p *Process) runWindowCommands(ctx context.Context) {
	for _, line := range p.cfg.WindowCommands {
		out, err := exec.CommandContext(ctx, "sh", "-c", line).CombinedOutput()
		if err != nil {
			p.logger.Warn("window command failed", "command", line, "error", err, "output", string(out))
		}
	}
}

// Pid returns the process id, or -1 before start.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate kills the process and waits for it. Safe to call more than once.
func (p *Process) Terminate() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("killing emulator: %w", kerr)
		}
		<-p.done
		p.logger.Info("emulator stopped", "pid", p.Pid())
	})
	return err
}
