package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// ErrPayloadSize is returned when an inbound payload has the wrong length.
var ErrPayloadSize = errors.New("unexpected payload size")

// ActionSize is the wire size of an action: two flags, two float axes and
// three more flags.
const ActionSize = 13

// EncodeAction packs a into the 13-byte action payload.
func EncodeAction(a core.Action) []byte {
	buf := make([]byte, ActionSize)
	buf[0] = flag(a.Forward)
	buf[1] = flag(a.Backward)
	binary.LittleEndian.PutUint32(buf[2:6], math.Float32bits(a.X))
	binary.LittleEndian.PutUint32(buf[6:10], math.Float32bits(a.Y))
	buf[10] = flag(a.LookBack)
	buf[11] = flag(a.Horn)
	buf[12] = flag(a.Drift)
	return buf
}

// DecodeAction unpacks an action payload. Any non-zero flag byte is true.
func DecodeAction(b []byte) (core.Action, error) {
	if len(b) != ActionSize {
		return core.Action{}, fmt.Errorf("action: got %d bytes, want %d: %w", len(b), ActionSize, ErrPayloadSize)
	}
	return core.Action{
		Forward:  b[0] != 0,
		Backward: b[1] != 0,
		X:        math.Float32frombits(binary.LittleEndian.Uint32(b[2:6])),
		Y:        math.Float32frombits(binary.LittleEndian.Uint32(b[6:10])),
		LookBack: b[10] != 0,
		Horn:     b[11] != 0,
		Drift:    b[12] != 0,
	}, nil
}

// EncodeSetup packs a setup value as int32.
func EncodeSetup(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeSetup unpacks an int32 setup value.
func DecodeSetup(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("setup: got %d bytes, want 4: %w", len(b), ErrPayloadSize)
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// EncodeBool packs a one-byte flag.
func EncodeBool(v bool) []byte {
	return []byte{flag(v)}
}

// EncodeStep packs the step counter as uint32.
func EncodeStep(step uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, step)
	return buf
}

// DecodeStep unpacks the step counter.
func DecodeStep(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("step: got %d bytes, want 4: %w", len(b), ErrPayloadSize)
	}
	return binary.LittleEndian.Uint32(b), nil
}

func flag(v bool) byte {
	if v {
		return 1
	}
	return 0
}
