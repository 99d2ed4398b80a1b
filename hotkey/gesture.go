package hotkey

import (
	"context"
	"time"

	"scribe/log"
)

// Target is what the hotkey drives.
type Target interface {
	Start()
	Stop()
	Active() bool
}

// Watch maps key gestures onto t until ctx is cancelled. A tap toggles
// recording. Holding the combination longer than hold records until the
// keys are released.
func Watch(ctx context.Context, hk Hotkey, hold time.Duration, t Target) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
		}

		if t.Active() {
			// a tap while recording stops on release
			if !waitKeyup(ctx, hk) {
				return
			}
			log.Info("hotkey_stop")
			t.Stop()
			continue
		}

		log.Info("hotkey_start")
		t.Start()
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-hk.Keyup():
			timer.Stop()
		case <-timer.C:
			if !waitKeyup(ctx, hk) {
				return
			}
			log.Info("hotkey_release_stop")
			t.Stop()
		}
	}
}

func waitKeyup(ctx context.Context, hk Hotkey) bool {
	select {
	case <-ctx.Done():
		return false
	case <-hk.Keyup():
		return true
	}
}
