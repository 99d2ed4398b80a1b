//go:build linux

package hotkey

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scribe/log"
)

const inputGroupHint = "run: sudo usermod -aG input $USER, then log in again"

var errNoKeyboards = errors.New("no keyboard devices found (is the user in the 'input' group?)")

// evdevHotkey reads key events straight from /dev/input, which works under
// both X11 and Wayland at the cost of needing the input group.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}

	mu     sync.Mutex
	files  []*os.File
	closed bool
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("scanning input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return errNoKeyboards
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			log.Warnf("hotkey: open %s: %v", path, err)
			continue
		}
		h.files = append(h.files, f)
		go h.watch(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("cannot open any of %d keyboard(s) (%s)", len(keyboards), inputGroupHint)
	}
	log.Infof("hotkey: listening for %s on %d keyboard(s)", Combo, len(h.files))
	return nil
}

// watch forwards combo edges from one keyboard until its file is closed.
func (h *evdevHotkey) watch(f *os.File) {
	var combo comboTracker
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for _, ev := range decodeEvents(buf[:n]) {
			switch combo.feed(ev) {
			case edgeDown:
				notify(h.keydown)
			case edgeUp:
				notify(h.keyup)
			}
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Unregister closes every keyboard, which ends the watch goroutines.
func (h *evdevHotkey) Unregister() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, f := range h.files {
		f.Close()
	}
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && hasKeys(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

// hasKeys reports whether the device advertises a full key bitmap. Mice
// and power buttons list only a handful of keys.
func hasKeys(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose checks that at least one keyboard can be read without
// registering the hotkey.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("scanning input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", errNoKeyboards
	}
	readable := 0
	for _, path := range keyboards {
		if f, err := os.Open(path); err == nil {
			f.Close()
			readable++
		}
	}
	if readable == 0 {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (%s)", len(keyboards), inputGroupHint)
	}
	return fmt.Sprintf("%s: %d of %d keyboard(s) readable", Combo, readable, len(keyboards)), nil
}
