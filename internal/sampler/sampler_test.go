package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument/instrumenttest"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/resolver"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

const (
	timerAddr  = 0x10
	statusAddr = 0x20
	speedAddr  = 0x30
)

func testTable() core.AddressTable {
	return core.NewAddressTable([]core.AddressSpec{
		{Name: core.AddrTimer, Offset: timerAddr, Width: 4, Format: core.FormatInt32},
		{Name: core.AddrStatus, Offset: statusAddr, Width: 4, Format: core.FormatInt32},
		{Name: core.AddrSpeed, Offset: speedAddr, Width: 4, Format: core.FormatFloat32},
	})
}

func startSampler(t *testing.T, opts ...Option) (context.Context, *Sampler, *instrumenttest.Fake) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	f := instrumenttest.New()
	f.WriteInt32(statusAddr, core.StatusRacing)
	f.WriteFloat32(speedAddr, 1.25)

	s := New(testTable(), opts...)
	go func() { _ = s.Run(ctx, f) }()
	return ctx, s, f
}

func TestSampler_SamplerModeCaptures(t *testing.T) {
	ctx, s, f := startSampler(t)

	_, ok := s.Snapshot()
	assert.False(t, ok)

	require.NoError(t, f.Tick(ctx, timerAddr, 5))

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.Tick)
	assert.Equal(t, int64(core.StatusRacing), snap.Int(core.AddrStatus))
	assert.InDelta(t, 1.25, snap.Float(core.AddrSpeed), 1e-6)
	assert.True(t, f.Watched(timerAddr))
	assert.False(t, s.Holding())
}

func TestSampler_CaptureFailureDiscardsTick(t *testing.T) {
	ctx, s, f := startSampler(t)

	f.FailReads(statusAddr, true)
	require.NoError(t, f.Tick(ctx, timerAddr, 1))
	_, ok := s.Snapshot()
	assert.False(t, ok)

	f.FailReads(statusAddr, false)
	require.NoError(t, f.Tick(ctx, timerAddr, 2))
	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Tick)
}

func TestSampler_StepperReleasesExactlyOncePerAcceptedTick(t *testing.T) {
	ctx, s, f := startSampler(t, WithStepSize(6))
	s.SetMode(ModeStepper)

	emitted := make(chan error, 1)
	go func() {
		for i := 1; i <= 30; i++ {
			if err := f.Tick(ctx, timerAddr, int32(i)); err != nil {
				emitted <- err
				return
			}
		}
		emitted <- nil
	}()

	var ticks []int64
	for len(ticks) < 5 {
		select {
		case <-s.Held():
			assert.True(t, s.Holding())
			snap, ok := s.Snapshot()
			require.True(t, ok)
			ticks = append(ticks, snap.Tick)
			s.Release()
			// a second release for the same tick is ignored
			s.Release()
		case <-ctx.Done():
			t.Fatal("timed out waiting for held tick")
		}
	}

	require.NoError(t, <-emitted)
	assert.Equal(t, []int64{6, 12, 18, 24, 30}, ticks)
	assert.False(t, s.Holding())
	assert.Equal(t, 30, f.Resumes())
}

func TestSampler_LeavingStepperReleasesHeldTick(t *testing.T) {
	ctx, s, f := startSampler(t, WithStepSize(6))
	s.SetMode(ModeStepper)

	emitted := make(chan error, 1)
	go func() { emitted <- f.Tick(ctx, timerAddr, 10) }()

	select {
	case <-s.Held():
	case <-ctx.Done():
		t.Fatal("tick was not held")
	}

	s.SetMode(ModeSampler)
	require.NoError(t, <-emitted)
	assert.False(t, s.Holding())

	select {
	case <-s.Held():
		t.Fatal("held channel should be drained")
	default:
	}
}

func TestSampler_EnteringStepperResetsReference(t *testing.T) {
	ctx, s, f := startSampler(t, WithStepSize(6))

	s.SetMode(ModeStepper)
	go func() { _ = f.Tick(ctx, timerAddr, 100) }()
	<-s.Held()
	s.Release()

	s.SetMode(ModeSampler)
	s.SetMode(ModeStepper)

	// reference is back to zero, so tick 7 is accepted
	go func() { _ = f.Tick(ctx, timerAddr, 7) }()
	select {
	case <-s.Held():
		s.Release()
	case <-ctx.Done():
		t.Fatal("tick 7 should be accepted after re-entering stepper")
	}
}

func TestSampler_Resolve(t *testing.T) {
	r := resolver.New(resolver.Config{Breakpoint: 0x500, Register: "r4", Players: 3, Offset: 8}, nil)
	ctx, s, f := startSampler(t, WithResolver(r))

	type result struct {
		addr uint64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		addr, err := s.Resolve(ctx)
		done <- result{addr, err}
	}()

	tick := int32(0)
	for !f.HasBreakpoint(0x500) {
		tick++
		require.NoError(t, f.Tick(ctx, timerAddr, tick))
	}
	assert.Equal(t, ModeResolve, s.Mode())

	for _, a := range []uint64{0x300, 0x100, 0x200, 0x100} {
		f.SetRegister("r4", a)
		require.NoError(t, f.Emit(ctx, instrument.Event{Kind: instrument.EventHit, Address: 0x500}))
	}

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, uint64(0x108), res.addr)
	case <-ctx.Done():
		t.Fatal("resolve did not finish")
	}
	assert.Equal(t, ModeSampler, s.Mode())
	assert.False(t, f.HasBreakpoint(0x500))
}

func TestSampler_ResolveCancelled(t *testing.T) {
	_, s, _ := startSampler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Resolve(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, ModeSampler, s.Mode())
}

func TestSampler_UseSwapsTable(t *testing.T) {
	ctx, s, f := startSampler(t)

	moved, err := s.Table().WithOffset(core.AddrSpeed, 0x40)
	require.NoError(t, err)
	f.WriteFloat32(0x40, 9.5)
	s.Use(moved)

	require.NoError(t, f.Tick(ctx, timerAddr, 1))
	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.InDelta(t, 9.5, snap.Float(core.AddrSpeed), 1e-6)
}

func TestSampler_WaitSnapshot(t *testing.T) {
	ctx, s, f := startSampler(t)

	got := make(chan core.Snapshot, 1)
	go func() {
		snap, err := s.WaitSnapshot(ctx)
		if err == nil {
			got <- snap
		}
	}()

	require.NoError(t, f.Tick(ctx, timerAddr, 3))
	select {
	case snap := <-got:
		assert.Equal(t, int64(3), snap.Tick)
	case <-ctx.Done():
		t.Fatal("WaitSnapshot did not return")
	}

	s.Reset()
	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestSampler_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := instrumenttest.New()
	s := New(testTable())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, f) }()
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
