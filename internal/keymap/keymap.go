// Package keymap holds the compiled-in association between GPIO lines and the
// keystroke sequences they trigger.
package keymap

import (
	"errors"
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Direction is the state a key moves to.
type Direction int

const (
	Release Direction = iota
	Press
)

func (d Direction) String() string {
	if d == Press {
		return "press"
	}
	return "release"
}

// Value returns the EV_KEY value written for this direction (1 = down, 0 = up).
func (d Direction) Value() int32 {
	if d == Press {
		return 1
	}
	return 0
}

// KeyEvent is a single directional key signal.
type KeyEvent struct {
	Code      evdev.EvCode
	Direction Direction
}

func (k KeyEvent) String() string {
	return fmt.Sprintf("%s(%d)", k.Direction, k.Code)
}

// Down returns a press of code.
func Down(code evdev.EvCode) KeyEvent {
	return KeyEvent{Code: code, Direction: Press}
}

// Up returns a release of code.
func Up(code evdev.EvCode) KeyEvent {
	return KeyEvent{Code: code, Direction: Release}
}

// Tap returns a press immediately followed by a release of code.
func Tap(code evdev.EvCode) []KeyEvent {
	return []KeyEvent{Down(code), Up(code)}
}

// Chord presses mods in order, taps key, then releases mods in reverse order.
func Chord(key evdev.EvCode, mods ...evdev.EvCode) []KeyEvent {
	seq := make([]KeyEvent, 0, 2*len(mods)+2)
	for _, m := range mods {
		seq = append(seq, Down(m))
	}
	seq = append(seq, Tap(key)...)
	for i := len(mods) - 1; i >= 0; i-- {
		seq = append(seq, Up(mods[i]))
	}
	return seq
}

// Mapping binds one line to the sequence it emits.
type Mapping struct {
	Line int
	Keys []KeyEvent
}

// Table is an ordered, immutable set of mappings. Line order is the order in
// which lines are acquired and scanned by the event loop.
type Table struct {
	mappings []Mapping
	index    map[int]int
}

// NewTable builds a Table and checks that every line is positive, unique and
// maps to a non-empty sequence.
func NewTable(mappings ...Mapping) (*Table, error) {
	if len(mappings) == 0 {
		return nil, errors.New("keymap: table is empty")
	}
	t := &Table{
		mappings: make([]Mapping, len(mappings)),
		index:    make(map[int]int, len(mappings)),
	}
	for i, m := range mappings {
		if m.Line <= 0 {
			return nil, fmt.Errorf("keymap: invalid line %d", m.Line)
		}
		if len(m.Keys) == 0 {
			return nil, fmt.Errorf("keymap: line %d has no keys", m.Line)
		}
		if _, dup := t.index[m.Line]; dup {
			return nil, fmt.Errorf("keymap: line %d mapped twice", m.Line)
		}
		keys := make([]KeyEvent, len(m.Keys))
		copy(keys, m.Keys)
		t.mappings[i] = Mapping{Line: m.Line, Keys: keys}
		t.index[m.Line] = i
	}
	return t, nil
}

// MustTable is NewTable for package-level tables; it panics on error.
func MustTable(mappings ...Mapping) *Table {
	t, err := NewTable(mappings...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the sequence for line. The returned slice must not be modified.
func (t *Table) Lookup(line int) ([]KeyEvent, bool) {
	i, ok := t.index[line]
	if !ok {
		return nil, false
	}
	return t.mappings[i].Keys, true
}

// Lines returns the mapped lines in table order.
func (t *Table) Lines() []int {
	lines := make([]int, len(t.mappings))
	for i, m := range t.mappings {
		lines[i] = m.Line
	}
	return lines
}

// Mappings returns a copy of the table entries in order.
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.mappings))
	copy(out, t.mappings)
	return out
}

// Codes returns every scan code used anywhere in the table, once each, in
// order of first appearance.
func (t *Table) Codes() []evdev.EvCode {
	seen := make(map[evdev.EvCode]bool)
	var codes []evdev.EvCode
	for _, m := range t.mappings {
		for _, k := range m.Keys {
			if !seen[k.Code] {
				seen[k.Code] = true
				codes = append(codes, k.Code)
			}
		}
	}
	return codes
}

// Len returns the number of mapped lines.
func (t *Table) Len() int {
	return len(t.mappings)
}
