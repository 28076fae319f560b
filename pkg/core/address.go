// pkg/core/address.go
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrWidthMismatch is returned when raw bytes do not match the declared width.
var ErrWidthMismatch = errors.New("raw value width mismatch")

// Format is the decoding format of a memory cell.
type Format uint8

const (
	FormatInt32 Format = iota
	FormatUint8
	FormatFloat32
)

func (f Format) String() string {
	switch f {
	case FormatInt32:
		return "i"
	case FormatUint8:
		return "B"
	case FormatFloat32:
		return "f"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Width returns the native byte width of the format.
func (f Format) Width() int {
	if f == FormatUint8 {
		return 1
	}
	return 4
}

// AddressSpec describes one named memory cell of the game process.
type AddressSpec struct {
	Name   string
	Offset uint64
	Width  int
	Format Format
}

// Decode interprets raw little-endian bytes in the declared format.
func (s AddressSpec) Decode(raw []byte) (Value, error) {
	if len(raw) != s.Width || s.Width != s.Format.Width() {
		return Value{}, fmt.Errorf("%s: got %d bytes, want %d: %w", s.Name, len(raw), s.Width, ErrWidthMismatch)
	}
	v := Value{Format: s.Format}
	switch s.Format {
	case FormatInt32:
		v.Int = int64(int32(binary.LittleEndian.Uint32(raw)))
	case FormatUint8:
		v.Int = int64(raw[0])
	case FormatFloat32:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	}
	return v, nil
}

// Value is a decoded memory cell.
type Value struct {
	Format Format
	Int    int64
	Float  float64
}

// Number returns the value as a float regardless of format.
func (v Value) Number() float64 {
	if v.Format == FormatFloat32 {
		return v.Float
	}
	return float64(v.Int)
}

// Encode returns the little-endian encoding of the value in its native width.
func (v Value) Encode() []byte {
	switch v.Format {
	case FormatUint8:
		return []byte{byte(v.Int)}
	case FormatFloat32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.Float)))
		return buf
	default:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(v.Int)))
		return buf
	}
}

// AddressTable is an ordered, immutable set of address specs.
type AddressTable struct {
	specs []AddressSpec
	index map[string]int
}

// NewAddressTable builds a table from specs. Later duplicates replace earlier ones.
func NewAddressTable(specs []AddressSpec) AddressTable {
	t := AddressTable{
		specs: make([]AddressSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		if i, ok := t.index[s.Name]; ok {
			t.specs[i] = s
			continue
		}
		t.index[s.Name] = len(t.specs)
		t.specs = append(t.specs, s)
	}
	return t
}

// Specs returns a copy of the specs in table order.
func (t AddressTable) Specs() []AddressSpec {
	out := make([]AddressSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Lookup returns the address registered under name.
func (t AddressTable) Lookup(name string) (AddressSpec, bool) {
	i, ok := t.index[name]
	if !ok {
		return AddressSpec{}, false
	}
	return t.specs[i], true
}

// Len returns the number of specs.
func (t AddressTable) Len() int {
	return len(t.specs)
}

// WithOffset returns a new table where the named spec points at offset.
// The receiver is left untouched.
func (t AddressTable) WithOffset(name string, offset uint64) (AddressTable, error) {
	i, ok := t.index[name]
	if !ok {
		return t, fmt.Errorf("no address named %q", name)
	}
	specs := t.Specs()
	specs[i].Offset = offset
	return NewAddressTable(specs), nil
}
