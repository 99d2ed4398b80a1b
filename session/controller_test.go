package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/audio"
	"scribe/format"
	"scribe/store"
	"scribe/transcriber"
)

type fakeMic struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	calls int
}

func (m *fakeMic) Acquire(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	gate, err := m.gate, m.err
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *fakeMic) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeClipboard struct {
	mu   sync.Mutex
	err  error
	text string
}

func (c *fakeClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

func (c *fakeClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

type recordingListener struct {
	mu          sync.Mutex
	transitions []string
	ticks       int
}

func (l *recordingListener) StateChanged(from, to State) {
	l.mu.Lock()
	l.transitions = append(l.transitions, from.String()+">"+to.String())
	l.mu.Unlock()
}
func (l *recordingListener) TextChanged(string)   {}
func (l *recordingListener) StatusChanged(Status) {}
func (l *recordingListener) Tick(time.Duration) {
	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()
}

func (l *recordingListener) Transitions() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.transitions, " ")
}

func (l *recordingListener) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

type recordingPersister struct {
	mu     sync.Mutex
	saves  []store.Settings
	drafts []string
}

func (p *recordingPersister) Save(s store.Settings) {
	p.mu.Lock()
	p.saves = append(p.saves, s)
	p.mu.Unlock()
}

func (p *recordingPersister) SaveDraft(text string) {
	p.mu.Lock()
	p.drafts = append(p.drafts, text)
	p.mu.Unlock()
}

func (p *recordingPersister) LastSave() store.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return store.Settings{}
	}
	return p.saves[len(p.saves)-1]
}

func (p *recordingPersister) LastDraft() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.drafts) == 0 {
		return "", false
	}
	return p.drafts[len(p.drafts)-1], true
}

type harness struct {
	t    *testing.T
	c    *Controller
	rec  *transcriber.Fake
	mic  *fakeMic
	clip *fakeClipboard
	lis  *recordingListener
	per  *recordingPersister
	hist *store.Memory
	stop func()
}

func newHarness(t *testing.T, tweak func(*Options, *harness)) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		rec:  transcriber.NewFake(),
		mic:  &fakeMic{},
		clip: &fakeClipboard{},
		lis:  &recordingListener{},
		per:  &recordingPersister{},
		hist: store.NewMemory(),
	}
	opts := Options{
		Recognizer:   h.rec,
		Microphone:   h.mic,
		Clipboard:    h.clip,
		Listener:     h.lis,
		Persister:    h.per,
		History:      h.hist,
		Language:     "en-US",
		Level:        format.LevelMedium,
		SettleDelay:  5 * time.Millisecond,
		RestartDelay: 5 * time.Millisecond,
		TickInterval: time.Hour,
		StatusTTL:    time.Hour,
		ErrorTTL:     time.Hour,
		StopGrace:    time.Hour,
	}
	if tweak != nil {
		tweak(&opts, h)
	}
	h.c = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()
	h.stop = func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
	t.Cleanup(func() {
		if h.stop != nil {
			h.stop()
		}
	})
	return h
}

// shutdown stops Run now instead of at cleanup.
func (h *harness) shutdown() {
	h.stop()
	h.stop = nil
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.c.Sync(ctx); err != nil {
		h.t.Fatalf("sync: %v", err)
	}
}

func (h *harness) waitFor(what string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.c.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; state=%s text=%q status=%q", what, s.State, s.Text, s.Status.Text)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitState(want State) Snapshot {
	h.t.Helper()
	return h.waitFor(want.String(), func(s Snapshot) bool { return s.State == want })
}

// record starts a recording and returns the live recognition.
func (h *harness) record() *transcriber.FakeRecognition {
	h.t.Helper()
	h.c.Start()
	h.waitState(StateRecording)
	return h.rec.Last()
}

func TestStartReachesRecording(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	if h.mic.Calls() != 1 {
		t.Errorf("Acquire calls = %d, want 1", h.mic.Calls())
	}
	if r.Starts() != 1 {
		t.Errorf("recognition starts = %d, want 1", r.Starts())
	}
	cfg := r.Config()
	if cfg.Language != "en-US" || !cfg.Continuous || !cfg.InterimResults || cfg.MaxAlternatives != 3 {
		t.Errorf("recognition config = %+v", cfg)
	}
	s := h.c.Snapshot()
	if s.Status.Kind != StatusRecording {
		t.Errorf("status = %+v, want recording", s.Status)
	}
	want := "idle>permission_pending permission_pending>starting starting>recording"
	if got := h.lis.Transitions(); got != want {
		t.Errorf("transitions = %q, want %q", got, want)
	}
	if got := h.per.LastSave(); got.Language != "en-US" {
		t.Errorf("settings not saved on start: %+v", got)
	}
}

func TestSecondStartSkipsPermission(t *testing.T) {
	h := newHarness(t, nil)
	h.record()
	h.c.Stop()
	h.waitState(StateIdle)

	h.record()
	if h.mic.Calls() != 1 {
		t.Errorf("Acquire calls = %d, want 1 after permission was granted", h.mic.Calls())
	}
	if h.rec.MaxOpen() != 1 {
		t.Errorf("MaxOpen = %d, want 1", h.rec.MaxOpen())
	}
}

func TestResultsAndStop(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	r.Final("hello world")
	r.Interim("and more")
	s := h.waitFor("interim text", func(s Snapshot) bool { return s.Interim == "and more" })
	if s.Text != "Hello world and more" {
		t.Errorf("text = %q", s.Text)
	}
	if s.Final != "Hello world " {
		t.Errorf("final = %q", s.Final)
	}
	if d, _ := h.per.LastDraft(); d != "Hello world " {
		t.Errorf("draft = %q", d)
	}

	h.c.Stop()
	s = h.waitState(StateIdle)
	if s.Text != "Hello world" {
		t.Errorf("text after stop = %q, want interim dropped", s.Text)
	}
	if s.Status.Text != "Recording stopped" {
		t.Errorf("status = %q", s.Status.Text)
	}
	if !r.Closed() {
		t.Error("recognition not closed after stop")
	}
	if d, _ := h.per.LastDraft(); d != "Hello world" {
		t.Errorf("draft after stop = %q", d)
	}
}

func TestAppendsToExistingText(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.Text = "Draft." })
	r := h.record()
	r.Final("more words")
	h.waitFor("final", func(s Snapshot) bool { return strings.Contains(s.Text, "More") })
	h.c.Stop()
	if s := h.waitState(StateIdle); s.Text != "Draft. More words" {
		t.Errorf("text = %q", s.Text)
	}
}

func TestFinalsUseLevel(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.Level = format.LevelOff })
	r := h.record()
	r.Final("raw text ,here")
	s := h.waitFor("final", func(s Snapshot) bool { return s.Final != "" })
	if s.Final != "raw text ,here " {
		t.Errorf("final = %q, want untouched segment", s.Final)
	}
}

func TestNoSpeechKeepsRecording(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	r.Fail(transcriber.ErrNoSpeech)
	s := h.waitFor("warning", func(s Snapshot) bool { return s.Status.Kind == StatusWarning })
	if s.State != StateRecording {
		t.Errorf("state = %s, want recording", s.State)
	}
	if s.LastError == nil || s.LastError.Kind != RecognitionWarning {
		t.Errorf("last error = %v", s.LastError)
	}
	if r.Closed() {
		t.Error("recognition closed on a warning")
	}
}

func TestNotAllowedStopsAndForgetsPermission(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	r.Fail(transcriber.ErrNotAllowed)
	s := h.waitState(StateIdle)
	if s.LastError == nil || s.LastError.Kind != PermissionDenied {
		t.Fatalf("last error = %v", s.LastError)
	}
	if s.Status.Kind != StatusError || s.Status.Guidance == "" {
		t.Errorf("status = %+v, want error with guidance", s.Status)
	}
	if !strings.Contains(h.lis.Transitions(), "recording>error error>idle") {
		t.Errorf("transitions = %q", h.lis.Transitions())
	}
	if !r.Closed() {
		t.Error("recognition not closed")
	}

	h.record()
	if h.mic.Calls() != 2 {
		t.Errorf("Acquire calls = %d, want permission asked again", h.mic.Calls())
	}
}

func TestFatalErrorStops(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()
	r.Final("kept")
	h.waitFor("final", func(s Snapshot) bool { return s.Final != "" })

	r.Fail(transcriber.ErrNetwork)
	s := h.waitState(StateIdle)
	if s.LastError == nil || s.LastError.Kind != RecognitionFatal || s.LastError.Code != transcriber.ErrNetwork {
		t.Fatalf("last error = %v", s.LastError)
	}
	if s.Status.Kind != StatusError {
		t.Errorf("status = %+v", s.Status)
	}
	if s.Text != "Kept" {
		t.Errorf("text = %q, want finalized text kept", s.Text)
	}
}

func TestErrorWhileStoppingIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.HoldEnd = true
	r := h.record()

	h.c.Stop()
	h.waitState(StateStopping)
	r.Fail(transcriber.ErrAborted)
	r.End()
	s := h.waitState(StateIdle)
	if s.LastError != nil {
		t.Errorf("last error = %v, want none", s.LastError)
	}
	if s.Status.Text != "Recording stopped" {
		t.Errorf("status = %q", s.Status.Text)
	}
}

func TestAutoRestartOnEnd(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	r.Final("one")
	r.End()
	h.waitFor("restart", func(Snapshot) bool { return r.Starts() == 2 })
	r.Final("two")
	s := h.waitFor("second final", func(s Snapshot) bool { return strings.Contains(s.Final, "Two") })
	if s.State != StateRecording {
		t.Errorf("state = %s", s.State)
	}
	if s.Final != "One Two " {
		t.Errorf("final = %q", s.Final)
	}
	if h.rec.Instances() != 1 || h.rec.MaxOpen() != 1 {
		t.Errorf("instances = %d maxOpen = %d, want the same recognition reused", h.rec.Instances(), h.rec.MaxOpen())
	}
}

func TestRestartRetriesOnce(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	h.rec.FailStarts(errors.New("busy"))
	r.End()
	h.waitFor("restart after retry", func(Snapshot) bool { return r.Starts() == 2 })
	if s := h.c.Snapshot(); s.State != StateRecording {
		t.Errorf("state = %s, want recording", s.State)
	}
}

func TestRestartFailureGivesUp(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()

	boom := errors.New("engine gone")
	h.rec.FailStarts(boom, boom)
	r.End()
	s := h.waitState(StateIdle)
	if s.LastError == nil || s.LastError.Kind != RestartFailure {
		t.Fatalf("last error = %v", s.LastError)
	}
	if !errors.Is(s.LastError, boom) {
		t.Errorf("last error %v does not wrap the start failure", s.LastError)
	}
	if r.Starts() != 1 {
		t.Errorf("starts = %d, want only the first", r.Starts())
	}
}

func TestStopCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.RestartDelay = 50 * time.Millisecond })
	r := h.record()

	r.End()
	h.c.Stop()
	h.waitState(StateIdle)
	time.Sleep(100 * time.Millisecond)
	h.sync()
	if r.Starts() != 1 {
		t.Errorf("starts = %d, restart ran after stop", r.Starts())
	}
	if s := h.c.Snapshot(); s.State != StateIdle {
		t.Errorf("state = %s", s.State)
	}
}

func TestStopGraceTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options, h *harness) { o.StopGrace = 20 * time.Millisecond })
	h.rec.HoldEnd = true
	r := h.record()
	r.Interim("never final")
	h.waitFor("interim", func(s Snapshot) bool { return s.Interim != "" })

	h.c.Stop()
	s := h.waitState(StateIdle)
	if s.Text != "" {
		t.Errorf("text = %q, want interim dropped", s.Text)
	}
	if !r.Closed() {
		t.Error("recognition not closed after grace timeout")
	}
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.err = fmt.Errorf("open: %w", audio.ErrPermissionDenied)

	h.c.Start()
	s := h.waitFor("error status", func(s Snapshot) bool { return s.LastError != nil })
	if s.State != StateIdle {
		t.Errorf("state = %s", s.State)
	}
	if s.LastError.Kind != PermissionDenied || s.Status.Guidance == "" {
		t.Errorf("error = %v status = %+v", s.LastError, s.Status)
	}
	if h.rec.Instances() != 0 {
		t.Errorf("recognition created without permission")
	}
}

func TestDeviceError(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.err = &audio.DeviceError{Device: "usb", Err: errors.New("busy")}

	h.c.Start()
	s := h.waitFor("error status", func(s Snapshot) bool { return s.LastError != nil })
	if s.LastError.Kind != DeviceError {
		t.Errorf("kind = %s", s.LastError.Kind)
	}
	if !strings.Contains(s.Status.Text, "busy") {
		t.Errorf("status = %q", s.Status.Text)
	}
}

func TestStopWhilePermissionPending(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.gate = make(chan struct{})

	h.c.Start()
	h.waitState(StatePermissionPending)
	h.c.Stop()
	h.waitState(StateIdle)

	close(h.mic.gate)
	time.Sleep(20 * time.Millisecond)
	h.sync()
	if s := h.c.Snapshot(); s.State != StateIdle {
		t.Errorf("late grant moved state to %s", s.State)
	}
	if h.rec.Instances() != 0 {
		t.Errorf("late grant created a recognition")
	}
}

func TestStopWhileStarting(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.SettleDelay = time.Hour })
	h.c.Start()
	h.waitState(StateStarting)

	h.c.Stop()
	s := h.waitState(StateIdle)
	r := h.rec.Last()
	if r.Starts() != 0 || !r.Closed() {
		t.Errorf("starts = %d closed = %v", r.Starts(), r.Closed())
	}
	if s.Status.Text != "Recording cancelled" {
		t.Errorf("status = %q", s.Status.Text)
	}
}

func TestElapsedTicks(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.TickInterval = 5 * time.Millisecond })
	h.record()
	h.waitFor("ticks", func(Snapshot) bool { return h.lis.Ticks() >= 3 })
	if s := h.c.Snapshot(); s.Elapsed <= 0 {
		t.Errorf("elapsed = %v", s.Elapsed)
	}

	h.c.Stop()
	h.waitState(StateIdle)
	h.sync()
	n := h.lis.Ticks()
	time.Sleep(30 * time.Millisecond)
	if h.lis.Ticks() != n {
		t.Error("ticks continued after stop")
	}
}

func TestStatusAutoClears(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) {
		o.StatusTTL = 20 * time.Millisecond
		o.ErrorTTL = 40 * time.Millisecond
	})

	h.c.Copy()
	h.waitFor("warning", func(s Snapshot) bool { return s.Status.Text == "Nothing to copy" })
	h.waitFor("ready", func(s Snapshot) bool { return s.Status == readyStatus })

	h.mic.err = audio.ErrPermissionDenied
	h.c.Start()
	h.waitFor("error", func(s Snapshot) bool { return s.Status.Kind == StatusError })
	h.waitFor("ready after error", func(s Snapshot) bool { return s.Status == readyStatus })
}

func TestStatusClearRestoresRecording(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.StatusTTL = 20 * time.Millisecond })
	r := h.record()
	r.Fail(transcriber.ErrNoSpeech)
	h.waitFor("warning", func(s Snapshot) bool { return s.Status.Kind == StatusWarning })
	h.waitFor("recording status", func(s Snapshot) bool { return s.Status.Kind == StatusRecording })
}

func TestCopy(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.Text = "some text" })
	h.c.Copy()
	h.sync()
	if h.clip.Text() != "some text" {
		t.Errorf("clipboard = %q", h.clip.Text())
	}
	if s := h.c.Snapshot(); s.Status.Kind != StatusSuccess {
		t.Errorf("status = %+v", s.Status)
	}

	h.clip.mu.Lock()
	h.clip.err = errors.New("no display")
	h.clip.mu.Unlock()
	h.c.Copy()
	h.sync()
	if s := h.c.Snapshot(); s.Status.Kind != StatusError {
		t.Errorf("status after failure = %+v", s.Status)
	}
}

func TestEditing(t *testing.T) {
	h := newHarness(t, nil)
	const input = "hello ,world . second sentence"

	h.c.SetText(input)
	h.c.FormatText()
	h.sync()
	want, _ := format.FormatText(input)
	if s := h.c.Snapshot(); s.Text != want || s.Status.Text != "Text formatted" {
		t.Errorf("format: text = %q status = %q, want %q", s.Text, s.Status.Text, want)
	}

	h.c.SetText("one. two three")
	h.c.AutoPunctuate()
	h.sync()
	want, _ = format.AutoPunctuate("one. two three")
	if s := h.c.Snapshot(); s.Text != want {
		t.Errorf("punctuate: text = %q, want %q", s.Text, want)
	}

	h.c.Clear()
	h.sync()
	if s := h.c.Snapshot(); s.Text != "" || s.Status.Text != "Text cleared" {
		t.Errorf("clear: text = %q status = %q", s.Text, s.Status.Text)
	}
	if d, _ := h.per.LastDraft(); d != "" {
		t.Errorf("draft after clear = %q", d)
	}

	h.c.FormatText()
	h.sync()
	if s := h.c.Snapshot(); s.Status.Text != "Nothing to format" {
		t.Errorf("format empty: status = %q", s.Status.Text)
	}
}

func TestEditsRefusedWhileRecording(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *harness) { o.Text = "before" })
	r := h.record()

	h.c.SetText("replaced")
	h.c.FormatText()
	h.sync()
	s := h.c.Snapshot()
	if s.Text != "before" || s.Status.Text != "Stop recording before editing" {
		t.Errorf("text = %q status = %q", s.Text, s.Status.Text)
	}

	h.c.Clear()
	h.sync()
	r.Final("fresh")
	s = h.waitFor("final after clear", func(s Snapshot) bool { return s.Final != "" })
	if s.Final != "Fresh " {
		t.Errorf("final after clear = %q", s.Final)
	}
}

func TestSettingsPersisted(t *testing.T) {
	h := newHarness(t, nil)
	h.c.SetLanguage("ru-RU")
	h.c.SetLevel(format.LevelHigh)
	h.sync()

	got := h.per.LastSave()
	if got.Language != "ru-RU" || got.PunctuationLevel != format.LevelHigh.String() {
		t.Errorf("saved = %+v", got)
	}
	if s := h.c.Snapshot(); s.Language != "ru-RU" || s.Level != format.LevelHigh {
		t.Errorf("snapshot = %s/%s", s.Language, s.Level)
	}

	h.record()
	if cfg := h.rec.Last().Config(); cfg.Language != "ru-RU" {
		t.Errorf("recognition language = %q", cfg.Language)
	}
}

func TestHistoryRecorded(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()
	r.Final("first part")
	r.Final("second part")
	h.waitFor("finals", func(s Snapshot) bool { return strings.Contains(s.Final, "Second") })
	h.c.Stop()
	h.waitState(StateIdle)

	var got []store.Transcript
	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		got, _ = h.hist.Recent(context.Background(), 10)
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 1 {
		t.Fatalf("history entries = %d, want 1", len(got))
	}
	if got[0].Text != "First part Second part" || got[0].Language != "en-US" {
		t.Errorf("history = %+v", got[0])
	}
}

func TestEmptyDictationNotRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.record()
	h.c.Stop()
	h.waitState(StateIdle)
	time.Sleep(20 * time.Millisecond)
	if got, _ := h.hist.Recent(context.Background(), 10); len(got) != 0 {
		t.Errorf("history = %+v, want empty", got)
	}
}

func TestShutdownWhileRecording(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()
	r.Final("unsaved words")
	r.Interim("tail")
	h.waitFor("interim", func(s Snapshot) bool { return s.Interim != "" })

	h.shutdown()
	if !r.Closed() {
		t.Error("recognition not closed on shutdown")
	}
	got := h.per.LastSave()
	if got.TextDraft != "Unsaved words" {
		t.Errorf("draft saved on shutdown = %q", got.TextDraft)
	}
}

func TestToggle(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Toggle()
	h.waitState(StateRecording)
	h.c.Toggle()
	h.waitState(StateIdle)
	if h.rec.Last().Stops() != 1 {
		t.Errorf("stops = %d", h.rec.Last().Stops())
	}
}

func TestDraftNeverHoldsInterim(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()
	r.Final("hello world")
	r.Interim("not final yet")
	h.waitFor("interim", func(s Snapshot) bool { return s.Interim != "" })

	h.c.SetLevel(format.LevelHigh)
	h.sync()
	if got := h.per.LastSave().TextDraft; got != "Hello world" {
		t.Errorf("draft saved by SetLevel = %q, want %q", got, "Hello world")
	}

	h.c.SetLanguage("ru-RU")
	h.sync()
	if got := h.per.LastSave().TextDraft; got != "Hello world" {
		t.Errorf("draft saved by SetLanguage = %q, want %q", got, "Hello world")
	}

	h.c.SaveSettings()
	h.sync()
	if got := h.per.LastSave().TextDraft; got != "Hello world" {
		t.Errorf("draft saved by SaveSettings = %q, want %q", got, "Hello world")
	}
}

func TestStartWhileRecordingIgnored(t *testing.T) {
	h := newHarness(t, nil)
	r := h.record()
	before := h.lis.Transitions()

	h.c.Start()
	h.sync()

	if n := h.rec.Instances(); n != 1 {
		t.Errorf("recognitions = %d, want 1", n)
	}
	if n := r.Starts(); n != 1 {
		t.Errorf("starts = %d, want 1", n)
	}
	if got := h.lis.Transitions(); got != before {
		t.Errorf("transitions = %q, want %q", got, before)
	}
	if s := h.c.Snapshot(); s.State != StateRecording {
		t.Errorf("state = %s, want recording", s.State)
	}
}

func TestStopWhileIdleIgnored(t *testing.T) {
	h := newHarness(t, nil)
	before := h.c.Snapshot()

	h.c.Stop()
	h.sync()

	if got := h.lis.Transitions(); got != "" {
		t.Errorf("transitions = %q, want none", got)
	}
	after := h.c.Snapshot()
	if after.State != StateIdle || after.Status != before.Status {
		t.Errorf("snapshot changed: %s %+v -> %s %+v", before.State, before.Status, after.State, after.Status)
	}
	if h.rec.Instances() != 0 || h.mic.Calls() != 0 {
		t.Errorf("stop touched the recognizer or microphone")
	}
}

// slowHistory delays every insert so a caller that does not wait for it
// sees an empty history.
type slowHistory struct {
	*store.Memory
	delay time.Duration
}

func (s slowHistory) Record(ctx context.Context, t store.Transcript) (string, error) {
	time.Sleep(s.delay)
	return s.Memory.Record(ctx, t)
}

func TestShutdownWaitsForHistory(t *testing.T) {
	mem := store.NewMemory()
	h := newHarness(t, func(o *Options, _ *harness) {
		o.History = slowHistory{Memory: mem, delay: 50 * time.Millisecond}
	})
	r := h.record()
	r.Final("last words")
	h.waitFor("final", func(s Snapshot) bool { return s.Final != "" })

	h.shutdown()
	got, err := mem.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "Last words" {
		t.Fatalf("history after Run returned = %+v, want the last dictation", got)
	}
}
