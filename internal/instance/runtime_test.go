package instance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument/instrumenttest"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/sampler"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

const timerAddr = 0x10

func testTable() core.AddressTable {
	return core.NewAddressTable([]core.AddressSpec{
		{Name: core.AddrTimer, Offset: timerAddr, Width: 4, Format: core.FormatInt32},
	})
}

type fakeProc struct{ terminated atomic.Int32 }

func (p *fakeProc) Terminate() error {
	p.terminated.Add(1)
	return nil
}

// fakeTarget ticks on its own until closed or told to fail.
type fakeTarget struct {
	*instrumenttest.Fake
	fail      chan struct{}
	failOnce  sync.Once
	closed    atomic.Bool
	handshake error
}

func newTarget() *fakeTarget {
	return &fakeTarget{Fake: instrumenttest.New(), fail: make(chan struct{})}
}

func (t *fakeTarget) Handshake(context.Context) error { return t.handshake }
func (t *fakeTarget) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *fakeTarget) Next(ctx context.Context) (instrument.Event, error) {
	select {
	case <-t.fail:
		return instrument.Event{}, errors.New("connection reset")
	default:
	}
	return t.Fake.Next(ctx)
}

func (t *fakeTarget) breakDown() { t.failOnce.Do(func() { close(t.fail) }) }

// pump feeds ticks until ctx ends.
func (t *fakeTarget) pump(ctx context.Context) {
	var tick int32
	for ctx.Err() == nil {
		tick++
		if err := t.Tick(ctx, timerAddr, tick); err != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type harness struct {
	rt      *Runtime
	mu      sync.Mutex
	procs   []*fakeProc
	targets []*fakeTarget
	ctx     context.Context
}

func newHarness(t *testing.T, launchErr error) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	h := &harness{ctx: ctx}
	s := sampler.New(testTable())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.rt = New(config.EmulatorConfig{GDBAddress: "127.0.0.1:6543", StartTimeout: time.Second}, s, logger,
		WithLauncher(func(context.Context, config.EmulatorConfig, *slog.Logger) (Process, error) {
			if launchErr != nil {
				return nil, launchErr
			}
			p := &fakeProc{}
			h.mu.Lock()
			h.procs = append(h.procs, p)
			h.mu.Unlock()
			return p, nil
		}),
		WithDialer(func(context.Context, string, *slog.Logger) (Target, error) {
			tg := newTarget()
			h.mu.Lock()
			h.targets = append(h.targets, tg)
			h.mu.Unlock()
			go tg.pump(ctx)
			return tg, nil
		}),
	)
	t.Cleanup(func() { _ = h.rt.Stop() })
	return h
}

func (h *harness) target(i int) *fakeTarget {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.targets[i]
}

func TestRuntime_StartStop(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.rt.Start(h.ctx))
	assert.Error(t, h.rt.Start(h.ctx))
	assert.True(t, h.target(0).Watched(timerAddr))

	require.NoError(t, h.rt.Stop())
	require.NoError(t, h.rt.Stop())
	assert.True(t, h.target(0).closed.Load())
	assert.Equal(t, int32(1), h.procs[0].terminated.Load())
}

func TestRuntime_LaunchError(t *testing.T) {
	h := newHarness(t, errors.New("no such file"))
	err := h.rt.Start(h.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launching emulator")
}

func TestRuntime_Relaunch(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.rt.Start(h.ctx))

	require.NoError(t, h.rt.Relaunch(h.ctx))
	assert.Len(t, h.procs, 2)
	assert.Equal(t, int32(1), h.procs[0].terminated.Load())
	assert.Zero(t, h.procs[1].terminated.Load())
	assert.True(t, h.target(0).closed.Load())
	assert.False(t, h.target(1).closed.Load())
}

func TestRuntime_WaitReportsLoopFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.rt.Start(h.ctx))

	h.target(0).breakDown()
	err := h.rt.Wait(h.ctx)
	assert.ErrorIs(t, err, ErrSamplerStopped)
}

func TestRuntime_WaitEndsWithContext(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.rt.Start(h.ctx))

	ctx, cancel := context.WithTimeout(h.ctx, 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.rt.Wait(ctx))
}
