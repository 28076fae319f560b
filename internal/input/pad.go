// Package input drives the virtual controller the game reads from.
package input

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Button is one digital input of the pad.
type Button int

const (
	ButtonA Button = iota
	ButtonB
	ButtonX
	ButtonY
	ButtonTL
	ButtonTR
	ButtonStart
)

// Buttons lists every button the device exposes.
var Buttons = []Button{ButtonA, ButtonB, ButtonX, ButtonY, ButtonTL, ButtonTR, ButtonStart}

func (b Button) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	case ButtonX:
		return "X"
	case ButtonY:
		return "Y"
	case ButtonTL:
		return "TL"
	case ButtonTR:
		return "TR"
	case ButtonStart:
		return "START"
	}
	return fmt.Sprintf("Button(%d)", int(b))
}

// In-game bindings.
const (
	ButtonConfirm  = ButtonB
	ButtonForward  = ButtonB
	ButtonBackward = ButtonA
	ButtonLookBack = ButtonY
	ButtonHorn     = ButtonTL
	ButtonDrift    = ButtonTR
	ButtonPause    = ButtonStart
)

// Axis is one analog stick axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Direction is a menu move performed with the stick.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) axis() (Axis, float32) {
	switch d {
	case Up:
		return AxisY, -1
	case Down:
		return AxisY, 1
	case Left:
		return AxisX, -1
	default:
		return AxisX, 1
	}
}

// Device is the raw event sink, usually a uinput device.
type Device interface {
	SetButton(b Button, pressed bool) error
	SetAxis(a Axis, value int32) error
	Sync() error
	Close() error
}

// DefaultHold is how long a tap keeps a button down.
const DefaultHold = 50 * time.Millisecond

// AxisValue maps [-1, 1] onto the signed 16-bit axis range.
func AxisValue(v float32) int32 {
	n := int64(v * 32768)
	if n > 32767 {
		n = 32767
	}
	if n < -32768 {
		n = -32768
	}
	return int32(n)
}

// Pad serialises access to a Device.
type Pad struct {
	mu   sync.Mutex
	dev  Device
	hold time.Duration
}

// NewPad wraps dev. A zero hold uses DefaultHold.
func NewPad(dev Device, hold time.Duration) *Pad {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Pad{dev: dev, hold: hold}
}

func (p *Pad) sleep(ctx context.Context) error {
	t := time.NewTimer(p.hold)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tap presses and releases b.
func (p *Pad) Tap(ctx context.Context, b Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.emitButton(b, true); err != nil {
		return err
	}
	waitErr := p.sleep(ctx)
	if err := p.emitButton(b, false); err != nil {
		return err
	}
	return waitErr
}

// Nudge deflects the stick fully in d and recentres it.
func (p *Pad) Nudge(ctx context.Context, d Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	axis, v := d.axis()
	if err := p.emitAxis(axis, AxisValue(v)); err != nil {
		return err
	}
	waitErr := p.sleep(ctx)
	if err := p.emitAxis(axis, 0); err != nil {
		return err
	}
	return waitErr
}

func (p *Pad) emitButton(b Button, pressed bool) error {
	if err := p.dev.SetButton(b, pressed); err != nil {
		return fmt.Errorf("button %s: %w", b, err)
	}
	return p.dev.Sync()
}

func (p *Pad) emitAxis(a Axis, v int32) error {
	if err := p.dev.SetAxis(a, v); err != nil {
		return fmt.Errorf("axis %d: %w", a, err)
	}
	return p.dev.Sync()
}

// Apply commits one agent action as a single frame of input, then stages a
// neutral state that the next commit will carry unless overridden.
func (p *Pad) Apply(a core.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a = a.Clamp()
	set := map[Button]bool{
		ButtonForward:  a.Forward,
		ButtonBackward: a.Backward,
		ButtonLookBack: a.LookBack,
		ButtonHorn:     a.Horn,
		ButtonDrift:    a.Drift,
	}
	for _, b := range Buttons {
		if err := p.dev.SetButton(b, set[b]); err != nil {
			return fmt.Errorf("button %s: %w", b, err)
		}
	}
	if err := p.dev.SetAxis(AxisX, AxisValue(a.X)); err != nil {
		return err
	}
	if err := p.dev.SetAxis(AxisY, AxisValue(a.Y)); err != nil {
		return err
	}
	if err := p.dev.Sync(); err != nil {
		return err
	}
	return p.neutral()
}

// Reset releases everything and commits it.
func (p *Pad) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.neutral(); err != nil {
		return err
	}
	return p.dev.Sync()
}

func (p *Pad) neutral() error {
	for _, b := range Buttons {
		if err := p.dev.SetButton(b, false); err != nil {
			return err
		}
	}
	if err := p.dev.SetAxis(AxisX, 0); err != nil {
		return err
	}
	return p.dev.SetAxis(AxisY, 0)
}

// Close releases the device.
func (p *Pad) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Close()
}
