// Package hotkey listens for the global Ctrl+Shift+Space combination so
// recording can be toggled while another window has focus.
package hotkey

// Combo is the key combination every backend listens for.
const Combo = "Ctrl+Shift+Space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
