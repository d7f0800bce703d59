package keymap

import evdev "github.com/holoplot/go-evdev"

// Line definitions (BCM numbering)
const (
	LineSpace = 20
	LineCtrlR = 21
)

// Default is the compiled-in button table.
//
// Add more lines here if required. Every scan code used is registered with the
// synthetic keyboard at startup.
var Default = MustTable(
	Mapping{Line: LineSpace, Keys: Tap(evdev.KEY_SPACE)},
	Mapping{Line: LineCtrlR, Keys: Chord(evdev.KEY_R, evdev.KEY_LEFTCTRL)},
)
