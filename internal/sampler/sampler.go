// Package sampler turns stop events from the instrumented game into a tick
// clock and a cache of telemetry snapshots.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/cache"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/resolver"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Mode selects what the sampler does on each tick.
type Mode int32

const (
	// ModeSampler captures without holding the process.
	ModeSampler Mode = iota
	// ModeStepper captures and holds the process on every accepted tick.
	ModeStepper
	// ModeResolve suspends capture while player pointers are collected.
	ModeResolve
)

func (m Mode) String() string {
	switch m {
	case ModeSampler:
		return "sampler"
	case ModeStepper:
		return "stepper"
	case ModeResolve:
		return "resolve"
	}
	return fmt.Sprintf("Mode(%d)", int32(m))
}

// DefaultStepSize is 6 ticks, about 100ms at 60 ticks/s.
const DefaultStepSize = 6

// Option configures a Sampler.
type Option func(*Sampler)

// WithStepSize sets the number of ticks between accepted ticks in stepper mode.
func WithStepSize(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.stepSize = int64(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) {
		s.logger = l
	}
}

// WithResolver replaces the pointer resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(s *Sampler) {
		s.resolver = r
	}
}

// Sampler is driven by Run on the event thread. All other methods are safe
// to call from the orchestrator.
type Sampler struct {
	logger   *slog.Logger
	resolver *resolver.Resolver
	stepSize int64
	snaps    *cache.Latest[core.Snapshot]
	metrics  *metrics

	// mu guards table, mode and ref, and orders hold/release against mode changes.
	mu    sync.Mutex
	table core.AddressTable
	mode  Mode
	ref   int64

	holding atomic.Bool
	held    chan uint32
	release chan struct{}
	holds   atomic.Uint32
}

// New creates a sampler over table.
func New(table core.AddressTable, opts ...Option) *Sampler {
	s := &Sampler{
		logger:   slog.Default(),
		stepSize: DefaultStepSize,
		snaps:    cache.NewLatest[core.Snapshot](),
		table:    table,
		held:     make(chan uint32, 1),
		release:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolver.New(resolver.DefaultConfig(), s.logger)
	}
	s.metrics = newMetrics()
	return s
}

// Run consumes stop events until ctx ends or the event source fails.
func (s *Sampler) Run(ctx context.Context, inst instrument.Instrumentation) error {
	timer, ok := s.Table().Lookup(core.AddrTimer)
	if !ok {
		return fmt.Errorf("address table has no %s", core.AddrTimer)
	}
	if err := inst.SetWriteWatch(ctx, timer.Offset, timer.Width); err != nil {
		return fmt.Errorf("setting tick watch: %w", err)
	}
	s.logger.Info("sampler started", "watch", fmt.Sprintf("0x%08x", timer.Offset), "stepSize", s.stepSize)

	for {
		ev, err := inst.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("waiting for stop event: %w", err)
		}

		s.handle(ctx, inst, ev)

		if err := inst.Resume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("resuming process: %w", err)
		}
	}
}

func (s *Sampler) handle(ctx context.Context, inst instrument.Instrumentation, ev instrument.Event) {
	switch ev.Kind {
	case instrument.EventHit:
		if s.Mode() != ModeResolve {
			return
		}
		if err := s.resolver.Observe(ctx, inst); err != nil {
			s.logger.Debug("resolver hit dropped", "error", err)
		}
	case instrument.EventTick:
		s.metrics.ticks.Add(ctx, 1)
		if s.Mode() == ModeResolve {
			if err := s.resolver.Arm(ctx, inst); err != nil {
				s.logger.Error("failed to arm resolver", "error", err)
			}
			return
		}
		snap, ok := s.capture(ctx, inst)
		if !ok {
			return
		}
		s.maybeHold(ctx, snap.Tick)
	}
}

// capture reads every address of the table. Any failed read discards the
// whole tick.
func (s *Sampler) capture(ctx context.Context, mem instrument.Memory) (core.Snapshot, bool) {
	specs := s.Table().Specs()
	values := make(map[string]core.Value, len(specs))
	for _, spec := range specs {
		raw, err := mem.ReadMemory(ctx, spec.Offset, spec.Width)
		if err != nil {
			s.metrics.faults.Add(ctx, 1)
			return core.Snapshot{}, false
		}
		v, err := spec.Decode(raw)
		if err != nil {
			s.metrics.faults.Add(ctx, 1)
			return core.Snapshot{}, false
		}
		values[spec.Name] = v
	}
	snap := core.Snapshot{
		Tick:       values[core.AddrTimer].Int,
		CapturedAt: time.Now(),
		Values:     values,
	}
	s.snaps.Store(snap)
	return snap, true
}

func (s *Sampler) maybeHold(ctx context.Context, tick int64) {
	s.mu.Lock()
	if s.mode != ModeStepper || tick-s.ref < s.stepSize {
		s.mu.Unlock()
		return
	}
	s.ref = tick
	select {
	case <-s.release:
	default:
	}
	s.holding.Store(true)
	n := s.holds.Add(1)
	select {
	case s.held <- n:
	default:
	}
	s.mu.Unlock()
	s.metrics.holds.Add(ctx, 1)

	select {
	case <-s.release:
	case <-ctx.Done():
		s.holding.Store(false)
	}
}

// SetMode switches the tick behaviour. Entering stepper resets the
// reference tick; leaving it releases a held tick.
func (s *Sampler) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == m {
		return
	}
	prev := s.mode
	s.mode = m
	if m == ModeStepper {
		s.ref = 0
	}
	if prev == ModeStepper {
		s.unhold()
		select {
		case <-s.held:
		default:
		}
	}
	s.logger.Debug("sampler mode changed", "from", prev.String(), "to", m.String())
}

// Mode returns the current mode.
func (s *Sampler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Held delivers one value per accepted tick in stepper mode.
func (s *Sampler) Held() <-chan uint32 {
	return s.held
}

// Holding reports whether the process is currently held.
func (s *Sampler) Holding() bool {
	return s.holding.Load()
}

// Release lets a held process continue. It has no effect when nothing is
// held, so each held tick is released at most once.
func (s *Sampler) Release() {
	if s.unhold() {
		s.metrics.releases.Add(context.Background(), 1)
	}
}

func (s *Sampler) unhold() bool {
	if !s.holding.CompareAndSwap(true, false) {
		return false
	}
	select {
	case s.release <- struct{}{}:
	default:
	}
	return true
}

// Snapshot returns the latest complete snapshot without blocking.
func (s *Sampler) Snapshot() (core.Snapshot, bool) {
	return s.snaps.Load()
}

// WaitSnapshot blocks until a first snapshot exists.
func (s *Sampler) WaitSnapshot(ctx context.Context) (core.Snapshot, error) {
	select {
	case <-s.snaps.Ready():
		snap, _ := s.snaps.Load()
		return snap, nil
	case <-ctx.Done():
		return core.Snapshot{}, ctx.Err()
	}
}

// Reset drops the cached snapshot.
func (s *Sampler) Reset() {
	s.snaps.Reset()
}

// Table returns the address table in use.
func (s *Sampler) Table() core.AddressTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// Use swaps the address table. Only call between episodes.
func (s *Sampler) Use(t core.AddressTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
}

// ErrNoPrimary is returned when resolution finished without a result.
var ErrNoPrimary = errors.New("resolver finished without a primary address")

// Resolve collects player pointers and returns the primary speed address.
// The prior mode is restored on return.
func (s *Sampler) Resolve(ctx context.Context) (uint64, error) {
	prev := s.Mode()
	s.resolver.Reset()
	done := s.resolver.Done()
	s.SetMode(ModeResolve)
	defer s.SetMode(prev)

	s.logger.Info("resolving player pointers")
	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	addr, ok := s.resolver.Primary()
	if !ok {
		return 0, ErrNoPrimary
	}
	return addr, nil
}
