//go:build linux

package input

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03

	synReport = 0
	busUSB    = 0x03

	absCnt = 64
)

var keyCodes = map[Button]uint16{
	ButtonA:     0x130,
	ButtonB:     0x131,
	ButtonX:     0x133,
	ButtonY:     0x134,
	ButtonTL:    0x136,
	ButtonTR:    0x137,
	ButtonStart: 0x13b,
}

var absCodes = map[Axis]uint16{
	AxisX: 0x00,
	AxisY: 0x01,
}

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name         [80]byte
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// inputEvent mirrors struct input_event on 64-bit platforms.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// UInput is a virtual Xbox 360 pad created through /dev/uinput.
type UInput struct {
	fd int
}

// DeviceConfig describes the identity of the virtual pad.
type DeviceConfig struct {
	Path    string
	Name    string
	Vendor  uint16
	Product uint16
	Version uint16
}

// DefaultDeviceConfig looks like a wired Xbox 360 controller.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Path:    "/dev/uinput",
		Name:    "Microsoft X-Box 360 pad",
		Vendor:  0x045e,
		Product: 0x028e,
		Version: 0x110,
	}
}

// OpenUInput creates the virtual device.
func OpenUInput(cfg DeviceConfig) (*UInput, error) {
	fd, err := unix.Open(cfg.Path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	u := &UInput{fd: fd}
	if err := u.setup(cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return u, nil
}

func (u *UInput) setup(cfg DeviceConfig) error {
	if err := unix.IoctlSetInt(u.fd, uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("enabling key events: %w", err)
	}
	if err := unix.IoctlSetInt(u.fd, uiSetEvBit, evAbs); err != nil {
		return fmt.Errorf("enabling abs events: %w", err)
	}
	for b, code := range keyCodes {
		if err := unix.IoctlSetInt(u.fd, uiSetKeyBit, int(code)); err != nil {
			return fmt.Errorf("enabling button %s: %w", b, err)
		}
	}

	dev := uinputUserDev{
		BusType: busUSB,
		Vendor:  cfg.Vendor,
		Product: cfg.Product,
		Version: cfg.Version,
	}
	copy(dev.Name[:], cfg.Name)
	for _, code := range absCodes {
		if err := unix.IoctlSetInt(u.fd, uiSetAbsBit, int(code)); err != nil {
			return fmt.Errorf("enabling axis %d: %w", code, err)
		}
		dev.AbsMin[code] = -32768
		dev.AbsMax[code] = 32767
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dev); err != nil {
		return err
	}
	if _, err := unix.Write(u.fd, buf.Bytes()); err != nil {
		return fmt.Errorf("writing device description: %w", err)
	}
	if err := unix.IoctlSetInt(u.fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	// udev needs a moment before readers see the node
	time.Sleep(time.Second)
	return nil
}

func (u *UInput) emit(typ, code uint16, value int32) error {
	now := time.Now()
	ev := inputEvent{
		Sec:   now.Unix(),
		Usec:  int64(now.Nanosecond() / 1000),
		Type:  typ,
		Code:  code,
		Value: value,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
		return err
	}
	_, err := unix.Write(u.fd, buf.Bytes())
	return err
}

func (u *UInput) SetButton(b Button, pressed bool) error {
	code, ok := keyCodes[b]
	if !ok {
		return fmt.Errorf("unmapped button %s", b)
	}
	var v int32
	if pressed {
		v = 1
	}
	return u.emit(evKey, code, v)
}

func (u *UInput) SetAxis(a Axis, value int32) error {
	code, ok := absCodes[a]
	if !ok {
		return fmt.Errorf("unmapped axis %d", a)
	}
	return u.emit(evAbs, code, value)
}

func (u *UInput) Sync() error {
	return u.emit(evSyn, synReport, 0)
}

func (u *UInput) Close() error {
	_ = unix.IoctlSetInt(u.fd, uiDevDestroy, 0)
	return unix.Close(u.fd)
}
