//go:build !linux

package input

import "errors"

// ErrUnsupported is returned where no virtual input backend exists.
var ErrUnsupported = errors.New("virtual input requires linux uinput")

// DeviceConfig describes the identity of the virtual pad.
type DeviceConfig struct {
	Path    string
	Name    string
	Vendor  uint16
	Product uint16
	Version uint16
}

func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{Name: "Microsoft X-Box 360 pad"}
}

// UInput is unavailable on this platform.
type UInput struct{}

func OpenUInput(DeviceConfig) (*UInput, error) { return nil, ErrUnsupported }

func (*UInput) SetButton(Button, bool) error { return ErrUnsupported }
func (*UInput) SetAxis(Axis, int32) error    { return ErrUnsupported }
func (*UInput) Sync() error                  { return ErrUnsupported }
func (*UInput) Close() error                 { return nil }
