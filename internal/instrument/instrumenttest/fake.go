// Package instrumenttest provides a scripted Instrumentation for tests.
package instrumenttest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
)

// ErrNoMemory is returned for reads of unmapped addresses.
var ErrNoMemory = errors.New("address not mapped")

// Fake is an in-memory process. Events are pushed by the test with Emit and
// each one blocks until the consumer resumes the process.
type Fake struct {
	mu        sync.Mutex
	memory    map[uint64][]byte
	registers map[string]uint64
	watches   map[uint64]int
	bps       map[uint64]bool
	failReads map[uint64]bool

	events  chan instrument.Event
	resumed chan struct{}
	resumes int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		memory:    make(map[uint64][]byte),
		registers: make(map[string]uint64),
		watches:   make(map[uint64]int),
		bps:       make(map[uint64]bool),
		failReads: make(map[uint64]bool),
		events:    make(chan instrument.Event),
		resumed:   make(chan struct{}, 1),
	}
}

// Write stores raw bytes at addr.
func (f *Fake) Write(addr uint64, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory[addr] = append([]byte(nil), raw...)
}

// WriteInt32 stores a little-endian int32.
func (f *Fake) WriteInt32(addr uint64, v int32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	f.Write(addr, buf)
}

// WriteFloat32 stores a little-endian float32.
func (f *Fake) WriteFloat32(addr uint64, v float32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	f.Write(addr, buf)
}

// WriteUint8 stores one byte.
func (f *Fake) WriteUint8(addr uint64, v uint8) {
	f.Write(addr, []byte{v})
}

// FailReads makes reads at addr fail.
func (f *Fake) FailReads(addr uint64, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads[addr] = fail
}

// SetRegister sets a register value.
func (f *Fake) SetRegister(name string, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[name] = v
}

// Watched reports whether a write watch exists at addr.
func (f *Fake) Watched(addr uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.watches[addr]
	return ok
}

// HasBreakpoint reports whether an execution breakpoint exists at addr.
func (f *Fake) HasBreakpoint(addr uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bps[addr]
}

// Resumes returns how many times the process was resumed.
func (f *Fake) Resumes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes
}

// Emit delivers one stop event and waits until the consumer resumes.
func (f *Fake) Emit(ctx context.Context, ev instrument.Event) error {
	select {
	case f.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-f.resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick writes the tick counter at addr and emits a tick stop.
func (f *Fake) Tick(ctx context.Context, addr uint64, tick int32) error {
	f.WriteInt32(addr, tick)
	return f.Emit(ctx, instrument.Event{Kind: instrument.EventTick, Address: addr})
}

func (f *Fake) ReadMemory(_ context.Context, addr uint64, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads[addr] {
		return nil, fmt.Errorf("read 0x%x: %w", addr, ErrNoMemory)
	}
	raw, ok := f.memory[addr]
	if !ok {
		return nil, fmt.Errorf("read 0x%x: %w", addr, ErrNoMemory)
	}
	if len(raw) < size {
		return nil, fmt.Errorf("read 0x%x: short", addr)
	}
	return append([]byte(nil), raw[:size]...), nil
}

func (f *Fake) ReadRegister(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.registers[name]
	if !ok {
		return 0, fmt.Errorf("unknown register %s", name)
	}
	return v, nil
}

func (f *Fake) SetWriteWatch(_ context.Context, addr uint64, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches[addr] = size
	return nil
}

func (f *Fake) SetBreakpoint(_ context.Context, addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bps[addr] = true
	return nil
}

func (f *Fake) ClearBreakpoint(_ context.Context, addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bps, addr)
	return nil
}

func (f *Fake) Next(ctx context.Context) (instrument.Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-ctx.Done():
		return instrument.Event{}, ctx.Err()
	}
}

func (f *Fake) Resume(context.Context) error {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
	select {
	case f.resumed <- struct{}{}:
	default:
	}
	return nil
}
