package keymap

import (
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableLines(t *testing.T) {
	assert.Equal(t, []int{20, 21}, Default.Lines())
	assert.Equal(t, 2, Default.Len())
}

func TestDefaultSpace(t *testing.T) {
	keys, ok := Default.Lookup(LineSpace)
	require.True(t, ok)
	assert.Equal(t, []KeyEvent{
		{Code: evdev.KEY_SPACE, Direction: Press},
		{Code: evdev.KEY_SPACE, Direction: Release},
	}, keys)
}

func TestDefaultCtrlR(t *testing.T) {
	keys, ok := Default.Lookup(LineCtrlR)
	require.True(t, ok)
	// Literal order matters: ctrl down, R down, R up, ctrl up.
	assert.Equal(t, []KeyEvent{
		Down(evdev.KEY_LEFTCTRL),
		Down(evdev.KEY_R),
		Up(evdev.KEY_R),
		Up(evdev.KEY_LEFTCTRL),
	}, keys)
}

func TestLookupMissing(t *testing.T) {
	keys, ok := Default.Lookup(99)
	assert.False(t, ok)
	assert.Nil(t, keys)
}

func TestCodesDeduplicated(t *testing.T) {
	assert.Equal(t, []evdev.EvCode{evdev.KEY_SPACE, evdev.KEY_LEFTCTRL, evdev.KEY_R}, Default.Codes())
}

func TestChordMultipleModifiers(t *testing.T) {
	got := Chord(evdev.KEY_DELETE, evdev.KEY_LEFTCTRL, evdev.KEY_LEFTALT)
	assert.Equal(t, []KeyEvent{
		Down(evdev.KEY_LEFTCTRL),
		Down(evdev.KEY_LEFTALT),
		Down(evdev.KEY_DELETE),
		Up(evdev.KEY_DELETE),
		Up(evdev.KEY_LEFTALT),
		Up(evdev.KEY_LEFTCTRL),
	}, got)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name     string
		mappings []Mapping
	}{
		{"empty", nil},
		{"zero line", []Mapping{{Line: 0, Keys: Tap(evdev.KEY_A)}}},
		{"negative line", []Mapping{{Line: -3, Keys: Tap(evdev.KEY_A)}}},
		{"no keys", []Mapping{{Line: 4}}},
		{"duplicate", []Mapping{{Line: 4, Keys: Tap(evdev.KEY_A)}, {Line: 4, Keys: Tap(evdev.KEY_B)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.mappings...)
			assert.Error(t, err)
		})
	}
}

func TestNewTableCopiesKeys(t *testing.T) {
	keys := Tap(evdev.KEY_A)
	tbl, err := NewTable(Mapping{Line: 5, Keys: keys})
	require.NoError(t, err)

	keys[0] = Down(evdev.KEY_Z)

	got, _ := tbl.Lookup(5)
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), got[0].Code)
}

func TestDirectionValue(t *testing.T) {
	assert.Equal(t, int32(1), Press.Value())
	assert.Equal(t, int32(0), Release.Value())
	assert.Equal(t, "press", Press.String())
	assert.Equal(t, "release", Release.String())
}

func TestMustTablePanics(t *testing.T) {
	assert.Panics(t, func() { MustTable() })
}
