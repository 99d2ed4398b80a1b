//go:build linux

package hotkey

import (
	"encoding/binary"
	"testing"
)

func encode(events ...inputEvent) []byte {
	buf := make([]byte, 0, len(events)*inputEventSize)
	for _, ev := range events {
		rec := make([]byte, inputEventSize)
		binary.LittleEndian.PutUint16(rec[16:], ev.typ)
		binary.LittleEndian.PutUint16(rec[18:], ev.code)
		binary.LittleEndian.PutUint32(rec[20:], uint32(ev.value))
		buf = append(buf, rec...)
	}
	return buf
}

func key(code uint16, value int32) inputEvent {
	return inputEvent{typ: evKey, code: code, value: value}
}

func TestDecodeEvents(t *testing.T) {
	want := []inputEvent{key(keyLCtrl, keyPress), {typ: 0, code: 0, value: 0}, key(keySpace, keyRelease)}
	buf := append(encode(want...), 1, 2, 3)

	got := decodeEvents(buf)
	if len(got) != len(want) {
		t.Fatalf("decoded %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestComboTracker(t *testing.T) {
	tests := []struct {
		name   string
		events []inputEvent
		want   []edge
	}{
		{
			name:   "press and release",
			events: []inputEvent{key(keyLCtrl, keyPress), key(keyLShift, keyPress), key(keySpace, keyPress), key(keySpace, keyRelease)},
			want:   []edge{edgeDown, edgeUp},
		},
		{
			name:   "right modifiers",
			events: []inputEvent{key(keyRCtrl, keyPress), key(keyRShift, keyPress), key(keySpace, keyPress)},
			want:   []edge{edgeDown},
		},
		{
			name:   "space without shift",
			events: []inputEvent{key(keyLCtrl, keyPress), key(keySpace, keyPress), key(keySpace, keyRelease)},
		},
		{
			name:   "modifier released first",
			events: []inputEvent{key(keyLCtrl, keyPress), key(keyLShift, keyPress), key(keySpace, keyPress), key(keyLCtrl, keyRelease), key(keySpace, keyRelease)},
			want:   []edge{edgeDown, edgeUp},
		},
		{
			name:   "autorepeat ignored",
			events: []inputEvent{key(keyLCtrl, keyPress), key(keyLShift, keyPress), key(keySpace, keyPress), key(keySpace, keyRepeat), key(keySpace, keyRepeat)},
			want:   []edge{edgeDown},
		},
		{
			name:   "one ctrl released while the other is held",
			events: []inputEvent{key(keyLCtrl, keyPress), key(keyRCtrl, keyPress), key(keyLCtrl, keyRelease), key(keyLShift, keyPress), key(keySpace, keyPress)},
			want:   []edge{edgeDown},
		},
		{
			name:   "non-key events",
			events: []inputEvent{{typ: 4, code: keySpace, value: keyPress}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c comboTracker
			var got []edge
			for _, ev := range tt.events {
				if e := c.feed(ev); e != edgeNone {
					got = append(got, e)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("edges = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("edges = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
