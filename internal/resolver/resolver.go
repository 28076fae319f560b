// Package resolver finds the address of the first player's state block by
// collecting the distinct values a register takes at a fixed code address.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
)

// Config describes where and how to collect player pointers.
type Config struct {
	// Breakpoint is the code address executed once per player per frame.
	Breakpoint uint64
	// Register holds the player pointer when the breakpoint hits.
	Register string
	// Players is the number of distinct pointers to collect.
	Players int
	// Offset is added to the lowest pointer to get the primary address.
	Offset uint64
}

// DefaultConfig matches the supported game build.
func DefaultConfig() Config {
	return Config{
		Breakpoint: 0x00386278,
		Register:   "r4",
		Players:    12,
		Offset:     804,
	}
}

// Resolver accumulates player pointers until the set is complete.
// Arm and Observe are called from the event thread only; the other
// methods may be called from anywhere.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	players map[uint64]struct{}
	armed   bool
	busy    bool
	done    chan struct{}
}

func New(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:     cfg,
		logger:  logger,
		players: make(map[uint64]struct{}, cfg.Players),
		done:    make(chan struct{}),
	}
}

// Config returns the resolver configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Reset clears collected pointers so the next Arm starts a new resolution.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[uint64]struct{}, r.cfg.Players)
	r.busy = false
	select {
	case <-r.done:
		r.done = make(chan struct{})
	default:
	}
}

// Arm installs the execution breakpoint once per resolution. It is a no-op
// while a resolution is in progress or already complete.
func (r *Resolver) Arm(ctx context.Context, bp instrument.Breakpoints) error {
	r.mu.Lock()
	if r.busy || len(r.players) >= r.cfg.Players {
		r.mu.Unlock()
		return nil
	}
	r.busy = true
	r.mu.Unlock()

	if err := bp.SetBreakpoint(ctx, r.cfg.Breakpoint); err != nil {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
		return fmt.Errorf("arming resolver breakpoint: %w", err)
	}
	r.mu.Lock()
	r.armed = true
	r.mu.Unlock()
	r.logger.Debug("resolver armed", "breakpoint", fmt.Sprintf("0x%08x", r.cfg.Breakpoint))
	return nil
}

type hitTarget interface {
	instrument.Memory
	instrument.Breakpoints
}

// Observe records the register value for one breakpoint hit and disarms
// the breakpoint once the set is complete.
func (r *Resolver) Observe(ctx context.Context, target hitTarget) error {
	addr, err := target.ReadRegister(ctx, r.cfg.Register)
	if err != nil {
		return fmt.Errorf("reading %s: %w", r.cfg.Register, err)
	}

	r.mu.Lock()
	if len(r.players) >= r.cfg.Players {
		r.mu.Unlock()
		return nil
	}
	r.players[addr] = struct{}{}
	complete := len(r.players) == r.cfg.Players
	armed := r.armed
	r.mu.Unlock()

	if !complete {
		return nil
	}

	if armed {
		if err := target.ClearBreakpoint(ctx, r.cfg.Breakpoint); err != nil {
			r.logger.Error("failed to clear resolver breakpoint", "error", err)
		}
	}

	r.mu.Lock()
	r.armed = false
	r.busy = false
	close(r.done)
	r.mu.Unlock()

	primary, _ := r.Primary()
	r.logger.Info("player pointers resolved", "count", r.cfg.Players, "primary", fmt.Sprintf("0x%08x", primary))
	return nil
}

// Complete reports whether all player pointers have been seen.
func (r *Resolver) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == r.cfg.Players
}

// Count returns how many distinct pointers have been collected.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Primary returns min(players) + Offset once the set is complete.
func (r *Resolver) Primary() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.players) != r.cfg.Players || len(r.players) == 0 {
		return 0, false
	}
	addrs := make([]uint64, 0, len(r.players))
	for a := range r.players {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs[0] + r.cfg.Offset, true
}

// Done is closed when the current resolution completes.
func (r *Resolver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
