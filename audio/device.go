package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrSelectionCancelled is returned when the user aborts the device picker.
var ErrSelectionCancelled = errors.New("device selection cancelled")

// FindDevice returns the device whose name contains name, case-insensitively.
// An empty name selects the system default, reported as nil.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

// SelectDevice lets the user pick a microphone on the terminal. The first
// entry is the system default, returned as nil.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no capture devices found")
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	p.render(os.Stdout)
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.handle(buf[:n]) {
		case pickConfirm:
			fmt.Print("\r\n")
			return p.selected(), nil
		case pickCancel:
			fmt.Print("\r\n")
			return nil, ErrSelectionCancelled
		}
		fmt.Printf("\x1b[%dA", p.lines())
		p.render(os.Stdout)
	}
}

type pickResult int

const (
	pickContinue pickResult = iota
	pickConfirm
	pickCancel
)

// picker is the cursor over "system default" followed by devices.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) handle(in []byte) pickResult {
	last := len(p.devices)
	switch {
	case len(in) == 1 && (in[0] == '\r' || in[0] == '\n'):
		return pickConfirm
	case len(in) == 1 && (in[0] == 3 || in[0] == 'q' || in[0] == 0x1b):
		return pickCancel
	case string(in) == "j" || string(in) == "\x1b[B":
		p.cursor = min(p.cursor+1, last)
	case string(in) == "k" || string(in) == "\x1b[A":
		p.cursor = max(p.cursor-1, 0)
	}
	return pickContinue
}

func (p *picker) selected() *DeviceInfo {
	if p.cursor == 0 {
		return nil
	}
	return &p.devices[p.cursor-1]
}

func (p *picker) lines() int { return len(p.devices) + 3 }

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	names := append([]string{"system default"}, deviceNames(p.devices)...)
	for i, name := range names {
		tag := ""
		if i > 0 && IsBluetooth(name) {
			tag = " \x1b[33m[headset: recognition may degrade]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", name, tag)
		}
	}
}

func deviceNames(devices []DeviceInfo) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}
