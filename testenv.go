package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/clipboard"
	"scribe/config"
	"scribe/format"
	"scribe/log"
	"scribe/notify"
	"scribe/session"
	"scribe/store"
	"scribe/transcriber"
)

// lineWriter serializes output from the controller goroutine and the
// command loop.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *lineWriter) printf(msg string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, msg+"\n", args...)
}

// printListener reports state and status changes on the test output.
type printListener struct{ out *lineWriter }

func (p printListener) StateChanged(from, to session.State) {
	p.out.printf("STATE %s -> %s", from, to)
}

func (p printListener) StatusChanged(st session.Status) {
	p.out.printf("STATUS %s: %s", st.Kind, st.Text)
}

func (printListener) TextChanged(string) {}
func (printListener) Tick(time.Duration) {}

// runTestMode drives a headless session from stdin. Recognition is replayed
// from scriptPath and the microphone, store, clipboard, sounds and
// notifications are all in-memory fakes.
//
// Commands, one per line:
//
//	START | STOP | TOGGLE | FORMAT | PUNCTUATE | CLEAR | COPY
//	TEXT <text>       replace the editor text
//	LANG <tag>        switch the recognition language
//	LEVEL <level>     off, medium or high
//	MIC ok|denied|broken
//	WAIT [state]      block until the session reaches state (default idle)
//	SLEEP <ms>
//	PRINT             print the editor text
//	STATUS            print state, elapsed time and status line
//	CUES              print the sounds played so far
//	CLIPBOARD         print the clipboard contents
//	QUIT
func runTestMode(cfg config.Config, scriptPath string, in io.Reader, stdout io.Writer) error {
	script, err := transcriber.LoadScript(scriptPath)
	if err != nil {
		return fmt.Errorf("loading script: %w", err)
	}

	out := &lineWriter{w: stdout}
	actx := audio.NewFakeContext()
	kv := store.NewMemory()
	persister := store.NewPersister(kv, cfg.Timing.DraftDebounce())
	defer persister.Close()
	clip := &clipboard.Fake{}
	cues := &beep.Recorder{}
	notes := &notify.Recorder{}

	ctrl := session.New(session.Options{
		Recognizer:   script.Recognizer(),
		Microphone:   audio.NewMicrophone(actx, nil),
		Clipboard:    clip,
		Listener:     fanout{cueSink{player: cues, notifier: notes}, printListener{out: out}},
		Persister:    persister,
		History:      kv,
		Language:     cfg.Language,
		Level:        cfg.Level(),
		SettleDelay:  cfg.Timing.SettleDelay(),
		RestartDelay: cfg.Timing.RestartDelay(),
		TickInterval: cfg.Timing.TickInterval(),
		StatusTTL:    cfg.Timing.StatusTTL(),
		ErrorTTL:     cfg.Timing.ErrorTTL(),
		StopGrace:    cfg.Timing.StopGrace(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	log.Info("test_mode_start")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(cmd) {
		case "START":
			ctrl.Start()
		case "STOP":
			ctrl.Stop()
		case "TOGGLE":
			ctrl.Toggle()
		case "FORMAT":
			ctrl.FormatText()
		case "PUNCTUATE":
			ctrl.AutoPunctuate()
		case "CLEAR":
			ctrl.Clear()
		case "COPY":
			ctrl.Copy()
		case "TEXT":
			ctrl.SetText(arg)
		case "LANG":
			if err := config.ValidateLanguage(arg); err != nil {
				out.printf("ERROR %v", err)
				continue
			}
			ctrl.SetLanguage(arg)
		case "LEVEL":
			level, err := format.ParseLevel(arg)
			if err != nil {
				out.printf("ERROR %v", err)
				continue
			}
			ctrl.SetLevel(level)
		case "MIC":
			switch arg {
			case "ok":
				actx.SetStartErr(nil)
			case "denied":
				actx.SetStartErr(audio.ErrPermissionDenied)
			case "broken":
				actx.SetStartErr(errors.New("device unplugged"))
			default:
				out.printf("ERROR unknown mic mode %q", arg)
				continue
			}
		case "WAIT":
			want := "idle"
			if arg != "" {
				want = arg
			}
			if err := waitForState(ctx, ctrl, want, 10*time.Second); err != nil {
				out.printf("ERROR %v", err)
			}
		case "SLEEP":
			ms, err := strconv.Atoi(arg)
			if err != nil {
				out.printf("ERROR bad sleep %q", arg)
				continue
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "PRINT":
			out.printf("TEXT %q", ctrl.Snapshot().Text)
		case "STATUS":
			s := ctrl.Snapshot()
			out.printf("NOW %s %s %s: %s", s.State, format.FormatElapsed(s.Elapsed), s.Status.Kind, s.Status.Text)
		case "CUES":
			names := make([]string, 0)
			for _, c := range cues.Cues() {
				names = append(names, c.String())
			}
			out.printf("CUES %s", strings.Join(names, ","))
		case "CLIPBOARD":
			text, _ := clip.Read()
			out.printf("CLIPBOARD %q", text)
		case "QUIT":
			return nil
		default:
			out.printf("ERROR unknown command %q", cmd)
			continue
		}
		if err := ctrl.Sync(ctx); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func waitForState(ctx context.Context, ctrl *session.Controller, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctrl.Sync(ctx); err != nil {
			return err
		}
		if ctrl.Snapshot().State.String() == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s (state %s)", want, ctrl.Snapshot().State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
