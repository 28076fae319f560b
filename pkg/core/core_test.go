package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressSpec_Decode(t *testing.T) {
	tests := []struct {
		name string
		spec AddressSpec
		raw  []byte
		want float64
	}{
		{"int32 negative", i32("a", 0), []byte{0xfe, 0xff, 0xff, 0xff}, -2},
		{"uint8", u8("b", 0), []byte{154}, 154},
		{"float32", f32("c", 0), []byte{0x00, 0x00, 0xc0, 0x3f}, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.spec.Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Number())
			assert.Equal(t, tt.raw, v.Encode())
		})
	}
}

func TestAddressSpec_DecodeWidthMismatch(t *testing.T) {
	_, err := i32("a", 0).Decode([]byte{1, 2})
	assert.True(t, errors.Is(err, ErrWidthMismatch))
}

func TestAddressTable_WithOffsetLeavesOriginal(t *testing.T) {
	table := DefaultAddressTable()
	orig, ok := table.Lookup(AddrSpeed)
	require.True(t, ok)

	updated, err := table.WithOffset(AddrSpeed, 0x1234)
	require.NoError(t, err)

	got, _ := updated.Lookup(AddrSpeed)
	assert.Equal(t, uint64(0x1234), got.Offset)
	still, _ := table.Lookup(AddrSpeed)
	assert.Equal(t, orig.Offset, still.Offset)
	assert.Equal(t, table.Len(), updated.Len())

	_, err = table.WithOffset("nope", 1)
	assert.Error(t, err)
}

func TestDefaultAddressTable_HasTelemetry(t *testing.T) {
	table := DefaultAddressTable()
	for _, name := range TelemetryFields {
		_, ok := table.Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestSceneFromRaw(t *testing.T) {
	assert.Equal(t, SceneRace, SceneFromRaw(0x8E51B158))
	assert.Equal(t, SceneLoading, SceneFromRaw(0))
	assert.Equal(t, SceneUnknown, SceneFromRaw(0x1234))
	// negative int32 reads map through the same word
	assert.Equal(t, SceneMainMenu, SceneFromRaw(int64(int32(-1937663148))))

	raw, ok := SceneRaceEndMenu.Raw()
	assert.True(t, ok)
	assert.Equal(t, uint32(0x8E991F14), raw)
	_, ok = SceneReady.Raw()
	assert.False(t, ok)
	assert.Equal(t, "WAIT_RACE", SceneWaitRace.String())
}

func TestSnapshot_RaceFinished(t *testing.T) {
	s := Snapshot{Values: map[string]Value{AddrStatus: {Format: FormatInt32, Int: StatusRacing}}}
	assert.False(t, s.RaceFinished())
	s.Values[AddrStatus] = Value{Format: FormatInt32, Int: StatusRacingPaused}
	assert.False(t, s.RaceFinished())
	s.Values[AddrStatus] = Value{Format: FormatInt32, Int: 64}
	assert.True(t, s.RaceFinished())
}

func TestGameSetup_GetSet(t *testing.T) {
	g := DefaultGameSetup()
	for _, k := range SetupKeys {
		require.NoError(t, g.Set(k, 7), k)
		v, err := g.Get(k)
		require.NoError(t, err)
		assert.Equal(t, int32(7), v)
	}

	err := g.Set("BOGUS", 1)
	assert.True(t, errors.Is(err, ErrUnknownSetupKey))
	_, err = g.Get("BOGUS")
	assert.True(t, errors.Is(err, ErrUnknownSetupKey))
}

func TestGameSetup_IsValue(t *testing.T) {
	a := DefaultGameSetup()
	b := a
	require.NoError(t, b.Set(SetupCourse, 12))
	assert.Equal(t, int32(15), a.Course)
}

func TestTrackTable(t *testing.T) {
	assert.Len(t, Tracks(), 48)

	rr, ok := TrackByCode(1416)
	require.True(t, ok)
	assert.Equal(t, CupSpecial, rr.Cup)
	assert.Equal(t, 15, rr.Course)

	bp, ok := TrackByCode(1490)
	require.True(t, ok)
	assert.Equal(t, CupCrossing, bp.Cup)
	assert.Equal(t, 12, bp.Course)
	assert.Equal(t, 7, bp.Laps)
	assert.InDelta(t, bp.Length/7, bp.LapLength(), 1e-9)

	bySlot, ok := TrackBySlot(CupSpecial, 15)
	require.True(t, ok)
	assert.Equal(t, 1416, bySlot.Code)

	_, ok = TrackBySlot(CupBell, 16)
	assert.False(t, ok)
	_, ok = TrackByCode(1400)
	assert.False(t, ok)
}

func TestParseRunMode(t *testing.T) {
	m, ok := ParseRunMode("1")
	assert.True(t, ok)
	assert.Equal(t, RunInference, m)
	m, ok = ParseRunMode("training")
	assert.True(t, ok)
	assert.Equal(t, RunTraining, m)
	_, ok = ParseRunMode("x")
	assert.False(t, ok)
}
