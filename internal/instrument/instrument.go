// Package instrument defines the collaborator that gives access to the
// halted game process: memory and register reads, watch/breakpoint control
// and a stream of stop events.
package instrument

import "context"

// EventKind tags what stopped the process.
type EventKind int

const (
	// EventTick is a write to the watched tick counter.
	EventTick EventKind = iota
	// EventHit is an execution breakpoint hit.
	EventHit
)

func (k EventKind) String() string {
	if k == EventHit {
		return "hit"
	}
	return "tick"
}

// Event is one stop of the target process. The process stays halted until
// Resume is called.
type Event struct {
	Kind    EventKind
	Address uint64
}

// Memory reads from the halted process.
type Memory interface {
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
	ReadRegister(ctx context.Context, name string) (uint64, error)
}

// Breakpoints installs and removes stop conditions.
type Breakpoints interface {
	SetWriteWatch(ctx context.Context, addr uint64, size int) error
	SetBreakpoint(ctx context.Context, addr uint64) error
	ClearBreakpoint(ctx context.Context, addr uint64) error
}

// EventSource yields stop events.
type EventSource interface {
	// Next blocks until the process stops.
	Next(ctx context.Context) (Event, error)
	// Resume lets the process continue after a stop.
	Resume(ctx context.Context) error
}

// Instrumentation is the full surface used by the sampler.
type Instrumentation interface {
	Memory
	Breakpoints
	EventSource
}
