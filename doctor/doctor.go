// Package doctor runs system checks for everything a dictation depends on.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"scribe/audio"
	"scribe/clipboard"
	"scribe/config"
	"scribe/control"
	"scribe/hotkey"
	"scribe/store"
	"scribe/transcriber"
)

// Check is one diagnostic. Run returns a short detail line on success.
// Soft checks report problems that do not stop dictation from working.
type Check struct {
	Name string
	Soft bool
	Run  func(ctx context.Context) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass,
// 1=any hard check failed).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "scribe doctor - system diagnostics")
	fmt.Fprintln(w, "==================================")

	failed := false
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		detail, err := c.Run(ctx)
		switch {
		case err == nil:
			fmt.Fprintf(w, "  PASS: %s\n", detail)
		case c.Soft:
			fmt.Fprintf(w, "  WARN: %v\n", err)
		default:
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed = true
		}
	}

	fmt.Fprintln(w)
	if failed {
		fmt.Fprintln(w, "Some checks failed. See details above.")
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

// Checks returns the standard diagnostics for cfg. When interactive is set
// the hotkey check waits for the user to press the combination.
func Checks(cfg config.Config, interactive bool) []Check {
	checks := []Check{
		{Name: "Hotkey", Soft: true, Run: func(ctx context.Context) (string, error) {
			if interactive {
				return pressHotkey(ctx)
			}
			return hotkey.Diagnose()
		}},
		{Name: "Microphone", Run: func(ctx context.Context) (string, error) {
			return checkMicrophone(ctx, cfg.Device)
		}},
		{Name: "Recognition", Run: func(ctx context.Context) (string, error) {
			return checkRecognition(ctx, cfg)
		}},
		{Name: "Clipboard", Soft: true, Run: func(context.Context) (string, error) {
			return checkClipboard(clipboard.System{})
		}},
		{Name: "Store", Run: func(ctx context.Context) (string, error) {
			return checkStore(ctx, cfg.Store)
		}},
		{Name: "Control socket", Soft: true, Run: func(context.Context) (string, error) {
			return checkControl(cfg.Control)
		}},
	}
	return checks
}

func pressHotkey(ctx context.Context) (string, error) {
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return "", fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()

	fmt.Printf("  Press %s...\n", hotkey.Combo)
	select {
	case <-hk.Keydown():
	case <-time.After(10 * time.Second):
		return "", errors.New("timeout waiting for hotkey")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case <-hk.Keyup():
	case <-time.After(5 * time.Second):
	}
	return "hotkey detected", nil
}

func checkMicrophone(ctx context.Context, name string) (string, error) {
	actx, err := audio.NewContext()
	if err != nil {
		return "", fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	devices, err := actx.Devices()
	if err != nil {
		return "", fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("no capture devices found")
	}
	device, err := audio.FindDevice(actx, name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := audio.NewMicrophone(actx, device).Acquire(ctx); err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return "", fmt.Errorf("%w (allow microphone access for this terminal)", err)
		}
		return "", err
	}
	detail := fmt.Sprintf("%d device(s), %s opened", len(devices), device.String())
	if device != nil && audio.IsBluetooth(device.Name) {
		detail += " (headset: recognition may degrade)"
	}
	return detail, nil
}

// checkRecognition opens one streaming run and waits until the engine
// accepts it.
func checkRecognition(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.Engine == "fake" {
		return "fake engine configured, nothing to check", nil
	}
	actx, err := audio.NewContext()
	if err != nil {
		return "", fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()
	device, err := audio.FindDevice(actx, cfg.Device)
	if err != nil {
		return "", err
	}

	opts := []transcriber.DeepgramOption{transcriber.WithModel(cfg.Deepgram.Model), transcriber.WithDevice(device)}
	if cfg.Deepgram.Endpoint != "" {
		opts = append(opts, transcriber.WithEndpoint(cfg.Deepgram.Endpoint))
	}
	rec, err := transcriber.NewDeepgram(cfg.Deepgram.APIKey, actx, opts...)
	if err != nil {
		return "", err
	}
	return tryRecognizer(ctx, rec, cfg.Language)
}

func tryRecognizer(ctx context.Context, rec transcriber.Recognizer, language string) (string, error) {
	r, err := rec.NewRecognition(transcriber.Config{Language: language, InterimResults: true})
	if err != nil {
		return "", err
	}
	defer r.Close()
	if err := r.Start(); err != nil {
		return "", err
	}
	started := time.Now()
	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return "", errors.New("recognition closed before starting")
			}
			switch ev.Kind {
			case transcriber.EventStart:
				r.Stop()
				return fmt.Sprintf("%s accepted %s in %dms", rec.Name(), language, time.Since(started).Milliseconds()), nil
			case transcriber.EventError:
				return "", fmt.Errorf("%s: %s", ev.Code, ev.Message)
			case transcriber.EventEnd:
				return "", errors.New("recognition ended before starting")
			}
		case <-timeout.C:
			return "", errors.New("timeout waiting for the recognition service")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

type readWriter interface {
	Copy(text string) error
	Read() (string, error)
}

// checkClipboard writes a sentinel and reads it back, then restores what
// was there before.
func checkClipboard(cb readWriter) (string, error) {
	previous, _ := cb.Read()
	sentinel := fmt.Sprintf("scribe-doctor-%d", time.Now().UnixNano())
	if err := cb.Copy(sentinel); err != nil {
		return "", err
	}
	got, err := cb.Read()
	if restoreErr := cb.Copy(previous); restoreErr != nil && err == nil {
		err = fmt.Errorf("restore clipboard: %w", restoreErr)
	}
	if err != nil {
		return "", err
	}
	if got != sentinel {
		return "", fmt.Errorf("clipboard read back %q, want %q", got, sentinel)
	}
	return "copy and read back verified", nil
}

func checkStore(ctx context.Context, sc config.StoreConfig) (string, error) {
	if sc.Mode == "memory" {
		return "memory store, settings are not kept between runs", nil
	}
	db, err := store.Open(sc.Path)
	if err != nil {
		return "", err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := store.Load(ctx, db); err != nil {
		return "", err
	}
	recent, err := db.Recent(ctx, 1000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d dictation(s) in history)", sc.Path, len(recent)), nil
}

func checkControl(cc config.ControlConfig) (string, error) {
	if !cc.Enabled {
		return "disabled in config", nil
	}
	resp, err := control.Do(cc.Socket, control.Command{Cmd: control.CmdStatus})
	if err != nil {
		return fmt.Sprintf("no panel running (%s)", cc.Socket), nil
	}
	if !resp.OK {
		return "", fmt.Errorf("panel at %s answered: %s", cc.Socket, resp.Error)
	}
	return fmt.Sprintf("panel running at %s, state %s", cc.Socket, resp.State), nil
}
