//go:build linux

package hotkey

import "encoding/binary"

// Linux input event codes, see linux/input-event-codes.h.
const (
	evKey = 1

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	keyLCtrl  = 29
	keyRCtrl  = 97
	keyLShift = 42
	keyRShift = 54
	keySpace  = 57
)

// struct input_event on 64-bit kernels: 16 bytes of timeval, then type,
// code and value.
const inputEventSize = 24

type inputEvent struct {
	typ   uint16
	code  uint16
	value int32
}

// decodeEvents parses whole input_event records from buf. A trailing
// partial record is ignored.
func decodeEvents(buf []byte) []inputEvent {
	events := make([]inputEvent, 0, len(buf)/inputEventSize)
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		events = append(events, inputEvent{
			typ:   binary.LittleEndian.Uint16(buf[i+16:]),
			code:  binary.LittleEndian.Uint16(buf[i+18:]),
			value: int32(binary.LittleEndian.Uint32(buf[i+20:])),
		})
	}
	return events
}

type edge int

const (
	edgeNone edge = iota
	edgeDown
	edgeUp
)

// comboTracker follows modifier state on one keyboard and reports when
// Ctrl+Shift+Space goes down and when space is released again. Releasing a
// modifier first does not end the press; only space does.
type comboTracker struct {
	lctrl, rctrl   bool
	lshift, rshift bool
	down           bool
}

func (c *comboTracker) feed(ev inputEvent) edge {
	if ev.typ != evKey || ev.value == keyRepeat {
		return edgeNone
	}
	held := ev.value == keyPress
	switch ev.code {
	case keyLCtrl:
		c.lctrl = held
	case keyRCtrl:
		c.rctrl = held
	case keyLShift:
		c.lshift = held
	case keyRShift:
		c.rshift = held
	case keySpace:
		ctrl := c.lctrl || c.rctrl
		shift := c.lshift || c.rshift
		if held && !c.down && ctrl && shift {
			c.down = true
			return edgeDown
		}
		if !held && c.down {
			c.down = false
			return edgeUp
		}
	}
	return edgeNone
}
