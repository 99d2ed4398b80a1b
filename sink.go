package main

import (
	"context"
	"sync/atomic"
	"time"

	"scribe/beep"
	"scribe/notify"
	"scribe/session"

	tea "github.com/charmbracelet/bubbletea"
)

// cueSink plays a sound when recording starts or stops and raises a desktop
// notification for errors, which matters when the panel is not visible.
type cueSink struct {
	player   beep.Player
	notifier notify.Notifier
}

func (s cueSink) StateChanged(from, to session.State) {
	switch {
	case from == session.StateStarting && to == session.StateRecording:
		s.player.Play(beep.CueStart)
	case from == session.StateStopping && to == session.StateIdle:
		s.player.Play(beep.CueStop)
	}
}

func (s cueSink) StatusChanged(st session.Status) {
	if st.Kind != session.StatusError {
		return
	}
	s.player.Play(beep.CueError)
	msg := st.Text
	if st.Guidance != "" {
		msg += "\n" + st.Guidance
	}
	s.notifier.Notify("Error", msg)
}

func (cueSink) TextChanged(string) {}
func (cueSink) Tick(time.Duration) {}

// fanout forwards every callback to each listener in order.
type fanout []session.Listener

func (f fanout) StateChanged(from, to session.State) {
	for _, l := range f {
		l.StateChanged(from, to)
	}
}

func (f fanout) TextChanged(text string) {
	for _, l := range f {
		l.TextChanged(text)
	}
}

func (f fanout) StatusChanged(st session.Status) {
	for _, l := range f {
		l.StatusChanged(st)
	}
}

func (f fanout) Tick(elapsed time.Duration) {
	for _, l := range f {
		l.Tick(elapsed)
	}
}

// snapshotPump hands controller snapshots to the TUI without blocking the
// controller. Only the latest snapshot is kept; intermediate ones are
// dropped when the program is slow to receive.
type snapshotPump struct {
	latest atomic.Pointer[session.Snapshot]
	kick   chan struct{}
}

func newSnapshotPump() *snapshotPump {
	return &snapshotPump{kick: make(chan struct{}, 1)}
}

// Offer is the controller's OnChange hook.
func (p *snapshotPump) Offer(s session.Snapshot) {
	p.latest.Store(&s)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run delivers snapshots to send until ctx is done.
func (p *snapshotPump) Run(ctx context.Context, send func(tea.Msg)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.kick:
			if s := p.latest.Load(); s != nil {
				send(snapshotMsg(*s))
			}
		}
	}
}
