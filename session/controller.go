// Package session drives a dictation: it owns the recording state machine,
// the transcript buffer and every timer involved, and reacts to user
// commands and recognizer events posted to a single inbox.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scribe/format"
	"scribe/log"
	"scribe/store"
	"scribe/transcriber"
)

// Microphone grants access to the capture device. Acquire may block while
// the platform asks the user.
type Microphone interface {
	Acquire(ctx context.Context) error
}

type Clipboard interface {
	Copy(text string) error
}

// Persister receives settings and draft writes. Both calls must not block.
type Persister interface {
	Save(s store.Settings)
	SaveDraft(text string)
}

// Listener is notified from the controller goroutine after every change.
// Implementations must return quickly.
type Listener interface {
	StateChanged(from, to State)
	TextChanged(text string)
	StatusChanged(st Status)
	Tick(elapsed time.Duration)
}

type Options struct {
	Recognizer transcriber.Recognizer
	Microphone Microphone
	Clipboard  Clipboard
	Listener   Listener
	Persister  Persister
	History    store.History

	Language string
	Level    format.Level
	Text     string // restored draft

	SettleDelay       time.Duration
	RestartDelay      time.Duration
	TickInterval      time.Duration
	StatusTTL         time.Duration
	ErrorTTL          time.Duration
	StopGrace         time.Duration
	MaxRestartRetries int

	// OnChange receives every published snapshot on the controller
	// goroutine. It must not block.
	OnChange func(Snapshot)

	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 300 * time.Millisecond
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = 100 * time.Millisecond
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 3 * time.Second
	}
	if o.ErrorTTL <= 0 {
		o.ErrorTTL = 5 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = time.Second
	}
	if o.MaxRestartRetries <= 0 {
		o.MaxRestartRetries = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Listener == nil {
		o.Listener = nopListener{}
	}
	if o.Persister == nil {
		o.Persister = nopPersister{}
	}
}

type timerKind int

const (
	timerSettle timerKind = iota
	timerRestart
	timerTick
	timerStatus
	timerStopGrace
)

type scheduled struct {
	t  *time.Timer
	id uint64
}

// Controller is the recording session state machine. All state is owned by
// the goroutine running Run; the exported methods only post messages.
type Controller struct {
	opts  Options
	inbox chan any
	done  chan struct{}
	snap  atomic.Pointer[Snapshot]

	// loop-owned state
	ctx        context.Context
	state      State
	gen        uint64 // bumped whenever an attempt or recognition is abandoned
	rec        transcriber.Recognition
	micGranted bool
	timers     map[timerKind]scheduled
	timerSeq   uint64
	restarts   int

	text      string
	final     string
	interim   string
	dictated  strings.Builder
	language  string
	level     format.Level
	startedAt time.Time
	status    Status
	lastErr   *Error

	writes sync.WaitGroup // history inserts Run waits for before returning
}

func New(opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		opts:     opts,
		inbox:    make(chan any, 64),
		done:     make(chan struct{}),
		timers:   make(map[timerKind]scheduled),
		text:     opts.Text,
		final:    opts.Text,
		language: opts.Language,
		level:    opts.Level,
		status:   readyStatus,
	}
	c.publish()
	return c
}

type (
	cmdStart       struct{}
	cmdStop        struct{}
	cmdToggle      struct{}
	cmdClear       struct{}
	cmdFormat      struct{}
	cmdPunctuate   struct{}
	cmdCopy        struct{}
	cmdSaveNow     struct{}
	cmdSetText     struct{ text string }
	cmdSetLanguage struct{ lang string }
	cmdSetLevel    struct{ level format.Level }
	cmdSync        struct{ done chan struct{} }

	permissionMsg struct {
		gen uint64
		err error
	}
	recognitionMsg struct {
		gen uint64
		ev  transcriber.Event
	}
	timerMsg struct {
		kind timerKind
		id   uint64
	}
)

func (c *Controller) Start() { c.post(cmdStart{}) }
func (c *Controller) Stop() { c.post(cmdStop{}) }
func (c *Controller) Toggle() { c.post(cmdToggle{}) }
func (c *Controller) Clear() { c.post(cmdClear{}) }
func (c *Controller) FormatText() { c.post(cmdFormat{}) }
func (c *Controller) AutoPunctuate() { c.post(cmdPunctuate{}) }
func (c *Controller) Copy() { c.post(cmdCopy{}) }
func (c *Controller) SaveSettings() { c.post(cmdSaveNow{}) }
func (c *Controller) SetText(text string) { c.post(cmdSetText{text}) }
func (c *Controller) SetLanguage(lang string) { c.post(cmdSetLanguage{lang}) }
func (c *Controller) SetLevel(level format.Level) { c.post(cmdSetLevel{level}) }
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Active reports whether a recording is in progress or being set up.
func (c *Controller) Active() bool { return c.Snapshot().State.Active() }

// Sync waits until every message posted before it has been handled.
func (c *Controller) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !c.post(cmdSync{done}) {
		return context.Canceled
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return context.Canceled
	}
}

func (c *Controller) post(m any) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

// Run processes messages until ctx is cancelled, then releases the
// recognizer and writes the settings one last time.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.writes.Wait()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case m := <-c.inbox:
			c.handle(m)
			c.publish()
		}
	}
}

func (c *Controller) shutdown() {
	c.cancelTimers()
	if c.state == StateRecording || c.state == StateStopping {
		c.final = strings.TrimRight(c.final, " ")
		c.text = c.final
		c.finishDictation()
	}
	c.teardownRecognition()
	c.opts.Persister.Save(c.settings())
}

func (c *Controller) handle(m any) {
	switch m := m.(type) {
	case cmdStart:
		c.start()
	case cmdStop:
		c.stop()
	case cmdToggle:
		if c.state.Active() {
			c.stop()
		} else {
			c.start()
		}
	case cmdClear:
		c.clear()
	case cmdFormat:
		c.edit(format.FormatText, "Text formatted", "Nothing to format")
	case cmdPunctuate:
		c.edit(format.AutoPunctuate, "Punctuation added", "Nothing to punctuate")
	case cmdCopy:
		c.copy()
	case cmdSaveNow:
		c.opts.Persister.Save(c.settings())
	case cmdSetText:
		c.setText(m.text)
	case cmdSetLanguage:
		c.setLanguage(m.lang)
	case cmdSetLevel:
		c.level = m.level
		c.opts.Persister.Save(c.settings())
	case cmdSync:
		close(m.done)
	case permissionMsg:
		c.onPermission(m)
	case recognitionMsg:
		if m.gen != c.gen {
			return
		}
		c.onRecognition(m.ev)
	case timerMsg:
		cur, ok := c.timers[m.kind]
		if !ok || cur.id != m.id {
			return
		}
		delete(c.timers, m.kind)
		c.onTimer(m.kind)
	}
}

func (c *Controller) publish() {
	s := &Snapshot{
		State:     c.state,
		Text:      c.text,
		Final:     c.final,
		Interim:   c.interim,
		Language:  c.language,
		Level:     c.level,
		StartedAt: c.startedAt,
		Status:    c.status,
		LastError: c.lastErr,
	}
	if c.state == StateRecording || c.state == StateStopping {
		s.Elapsed = c.opts.Now().Sub(c.startedAt)
	}
	c.snap.Store(s)
	if c.opts.OnChange != nil {
		c.opts.OnChange(*s)
	}
}

func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	log.StateChange(from.String(), to.String())
	c.opts.Listener.StateChanged(from, to)
}

func (c *Controller) setStatus(st Status) {
	c.status = st
	c.opts.Listener.StatusChanged(st)
	c.cancelTimer(timerStatus)
	switch st.Kind {
	case StatusRecording:
	case StatusError:
		c.schedule(timerStatus, c.opts.ErrorTTL)
	default:
		c.schedule(timerStatus, c.opts.StatusTTL)
	}
}

func (c *Controller) setDisplay(text string) {
	if text == c.text {
		return
	}
	c.text = text
	c.opts.Listener.TextChanged(text)
}

// settings is what gets persisted. While a session is active the draft is
// the finalized transcript only; interim text is never saved.
func (c *Controller) settings() store.Settings {
	draft := c.text
	if c.state.Active() {
		draft = strings.TrimRight(c.final, " ")
	}
	return store.Settings{
		Language:         c.language,
		PunctuationLevel: c.level.String(),
		TextDraft:        draft,
	}
}

// schedule arms a timer of the given kind, replacing any armed one. A timer
// that fires after being replaced or cancelled is ignored by handle.
func (c *Controller) schedule(kind timerKind, d time.Duration) {
	c.cancelTimer(kind)
	c.timerSeq++
	id := c.timerSeq
	t := time.AfterFunc(d, func() { c.post(timerMsg{kind: kind, id: id}) })
	c.timers[kind] = scheduled{t: t, id: id}
}

func (c *Controller) cancelTimer(kind timerKind) {
	if cur, ok := c.timers[kind]; ok {
		cur.t.Stop()
		delete(c.timers, kind)
	}
}

// cancelTimers stops every session timer. The status timer is left alone so
// the last message still clears on time.
func (c *Controller) cancelTimers() {
	for _, k := range []timerKind{timerSettle, timerRestart, timerTick, timerStopGrace} {
		c.cancelTimer(k)
	}
}

func (c *Controller) start() {
	if c.state != StateIdle {
		return
	}
	c.gen++
	c.lastErr = nil
	c.restarts = 0
	c.dictated.Reset()
	c.final = c.text
	if c.final != "" && !strings.HasSuffix(c.final, " ") && !strings.HasSuffix(c.final, "\n") {
		c.final += " "
	}
	c.interim = ""
	c.opts.Persister.Save(c.settings())

	if c.micGranted {
		c.beginRecognition()
		return
	}

	c.setState(StatePermissionPending)
	gen := c.gen
	ctx := c.ctx
	go func() {
		err := c.opts.Microphone.Acquire(ctx)
		c.post(permissionMsg{gen: gen, err: err})
	}()
}

func (c *Controller) onPermission(m permissionMsg) {
	if m.gen != c.gen || c.state != StatePermissionPending {
		return
	}
	if m.err != nil {
		e := classifyAcquire(m.err)
		log.Warnf("microphone acquire failed: %v", m.err)
		c.micGranted = false
		c.lastErr = e
		c.setState(StateIdle)
		c.setStatus(e.Status())
		return
	}
	c.micGranted = true
	c.beginRecognition()
}

// beginRecognition replaces any previous recognition with a fresh one and
// arms the settle delay before starting it.
func (c *Controller) beginRecognition() {
	c.teardownRecognition()

	rec, err := c.opts.Recognizer.NewRecognition(transcriber.Config{
		Language:        c.language,
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 3,
	})
	if err != nil {
		c.hardStop(&Error{Kind: RecognitionFatal, Err: fmt.Errorf("create recognition: %w", err)})
		return
	}
	c.gen++
	c.rec = rec
	gen := c.gen
	go func() {
		for ev := range rec.Events() {
			if !c.post(recognitionMsg{gen: gen, ev: ev}) {
				return
			}
		}
	}()

	c.setState(StateStarting)
	c.schedule(timerSettle, c.opts.SettleDelay)
}

func (c *Controller) teardownRecognition() {
	if c.rec == nil {
		return
	}
	rec := c.rec
	c.rec = nil
	c.gen++
	if err := rec.Close(); err != nil {
		log.Warnf("recognition close: %v", err)
	}
}

func (c *Controller) onTimer(kind timerKind) {
	switch kind {
	case timerSettle:
		if c.state != StateStarting || c.rec == nil {
			return
		}
		if err := c.rec.Start(); err != nil {
			c.hardStop(&Error{Kind: RecognitionFatal, Err: fmt.Errorf("start recognition: %w", err)})
		}
	case timerRestart:
		if c.state != StateRecording || c.rec == nil {
			return
		}
		c.restart()
	case timerTick:
		if c.state != StateRecording {
			return
		}
		elapsed := c.opts.Now().Sub(c.startedAt)
		c.opts.Listener.Tick(elapsed)
		c.schedule(timerTick, c.opts.TickInterval)
	case timerStopGrace:
		if c.state == StateStopping {
			log.Warn("recognition_stop_timeout")
			c.finishStop()
		}
	case timerStatus:
		if c.state == StateRecording {
			c.status = Status{Kind: StatusRecording, Text: recordingText}
		} else {
			c.status = readyStatus
		}
		c.opts.Listener.StatusChanged(c.status)
	}
}

const recordingText = "Recording... speak clearly"

// restart brings the recognizer back after it ended on its own. A failed
// restart is retried after the restart delay until the retry budget is
// spent.
func (c *Controller) restart() {
	err := c.rec.Start()
	if err == nil {
		log.Restart(c.restarts+1, nil)
		return
	}
	c.restarts++
	log.Restart(c.restarts, err)
	if c.restarts <= c.opts.MaxRestartRetries {
		c.schedule(timerRestart, c.opts.RestartDelay)
		return
	}
	c.hardStop(&Error{Kind: RestartFailure, Err: err})
}

func (c *Controller) onRecognition(ev transcriber.Event) {
	switch ev.Kind {
	case transcriber.EventStart:
		switch c.state {
		case StateStarting:
			c.cancelTimer(timerSettle)
			c.startedAt = c.opts.Now()
			c.setState(StateRecording)
			c.setStatus(Status{Kind: StatusRecording, Text: recordingText})
			c.schedule(timerTick, c.opts.TickInterval)
			c.opts.Listener.Tick(0)
			log.SessionStart(c.opts.Recognizer.Name(), c.language, c.level.String())
		case StateRecording:
			c.restarts = 0
		}

	case transcriber.EventResult:
		if c.state != StateRecording && c.state != StateStopping {
			return
		}
		c.applyResults(ev)

	case transcriber.EventError:
		e := classifyRecognition(ev)
		log.RecognitionError(string(ev.Code), ev.Message, e.Fatal())
		if c.state == StateStopping {
			// the engine reports the stop itself as aborted
			return
		}
		if !c.state.Active() {
			return
		}
		if !e.Fatal() {
			c.lastErr = e
			c.setStatus(e.Status())
			return
		}
		if e.Kind == PermissionDenied {
			c.micGranted = false
		}
		c.hardStop(e)

	case transcriber.EventEnd:
		switch c.state {
		case StateStopping:
			c.finishStop()
		case StateRecording:
			c.schedule(timerRestart, c.opts.RestartDelay)
		case StateStarting:
			c.hardStop(&Error{Kind: RecognitionFatal, Err: fmt.Errorf("recognition ended before it started")})
		}
	}
}

// applyResults appends newly finalized segments to the transcript and
// rebuilds the interim tail.
func (c *Controller) applyResults(ev transcriber.Event) {
	var interim strings.Builder
	changed := false
	for i := ev.ResultIndex; i < len(ev.Results); i++ {
		r := ev.Results[i]
		if r.IsFinal {
			segment := format.ProcessPunctuation(r.Transcript, c.level)
			if strings.TrimSpace(segment) == "" {
				continue
			}
			c.final += segment + " "
			c.dictated.WriteString(segment + " ")
			changed = true
			continue
		}
		interim.WriteString(r.Transcript)
	}
	c.interim = interim.String()
	c.setDisplay(c.final + c.interim)
	if changed {
		c.opts.Persister.SaveDraft(c.final)
	}
}

func (c *Controller) stop() {
	switch c.state {
	case StatePermissionPending:
		c.gen++
		c.setState(StateIdle)
		c.setStatus(Status{Kind: StatusInfo, Text: "Recording cancelled"})
	case StateStarting:
		c.cancelTimers()
		c.teardownRecognition()
		c.setState(StateIdle)
		c.setDisplay(strings.TrimRight(c.final, " "))
		c.final = c.text
		c.setStatus(Status{Kind: StatusInfo, Text: "Recording cancelled"})
	case StateRecording:
		_, ended := c.timers[timerRestart]
		c.cancelTimers()
		c.setState(StateStopping)
		if ended {
			// nothing left to flush, the recognizer is between runs
			c.finishStop()
			return
		}
		c.schedule(timerStopGrace, c.opts.StopGrace)
		c.rec.Stop()
	}
}

// finishStop completes a user stop: interim text is dropped and the buffer
// becomes the finalized transcript.
func (c *Controller) finishStop() {
	c.cancelTimers()
	c.teardownRecognition()
	c.interim = ""
	c.final = strings.TrimRight(c.final, " ")
	c.setDisplay(c.final)
	c.finishDictation()
	c.setState(StateIdle)
	c.setStatus(Status{Kind: StatusSuccess, Text: "Recording stopped"})
}

// hardStop ends the recording because of e, passing through StateError.
func (c *Controller) hardStop(e *Error) {
	log.Errorf("recording stopped: %v", e)
	c.lastErr = e
	c.cancelTimers()
	c.teardownRecognition()
	c.interim = ""
	c.final = strings.TrimRight(c.final, " ")
	c.setDisplay(c.final)
	wasRecording := c.state == StateRecording
	c.setState(StateError)
	c.setStatus(e.Status())
	if wasRecording {
		c.finishDictation()
	}
	c.setState(StateIdle)
}

// finishDictation logs and records the text dictated in this recording.
func (c *Controller) finishDictation() {
	elapsed := c.opts.Now().Sub(c.startedAt)
	text := strings.TrimSpace(c.dictated.String())
	c.dictated.Reset()
	log.SessionEnd(format.CountWords(text), elapsed)
	c.opts.Persister.SaveDraft(c.text)
	if text == "" {
		return
	}
	log.TranscriptionText(text)
	if c.opts.History == nil {
		return
	}
	t := store.Transcript{
		Language:  c.language,
		StartedAt: c.startedAt,
		EndedAt:   c.opts.Now(),
		Text:      text,
	}
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.opts.History.Record(ctx, t); err != nil {
			log.Warnf("history record failed: %v", err)
		}
	}()
}

func (c *Controller) clear() {
	if strings.TrimSpace(c.text) == "" && c.final == "" {
		return
	}
	c.final = ""
	c.interim = ""
	c.dictated.Reset()
	c.setDisplay("")
	c.opts.Persister.SaveDraft("")
	c.setStatus(Status{Kind: StatusInfo, Text: "Text cleared"})
}

func (c *Controller) refuseWhileRecording() bool {
	if !c.state.Active() {
		return false
	}
	c.setStatus(Status{Kind: StatusWarning, Text: "Stop recording before editing"})
	return true
}

func (c *Controller) setText(text string) {
	if c.refuseWhileRecording() {
		return
	}
	c.final = text
	c.setDisplay(text)
	c.opts.Persister.SaveDraft(text)
}

func (c *Controller) edit(fn func(string) (string, error), done, empty string) {
	if c.refuseWhileRecording() {
		return
	}
	out, err := fn(c.text)
	if err != nil {
		c.setStatus(Status{Kind: StatusWarning, Text: empty})
		return
	}
	c.final = out
	c.setDisplay(out)
	c.opts.Persister.SaveDraft(out)
	c.setStatus(Status{Kind: StatusSuccess, Text: done})
}

func (c *Controller) copy() {
	if strings.TrimSpace(c.text) == "" {
		c.setStatus(Status{Kind: StatusWarning, Text: "Nothing to copy"})
		return
	}
	if c.opts.Clipboard == nil {
		c.setStatus(Status{Kind: StatusError, Text: "Clipboard unavailable"})
		return
	}
	if err := c.opts.Clipboard.Copy(c.text); err != nil {
		log.Warnf("clipboard copy failed: %v", err)
		c.setStatus(Status{Kind: StatusError, Text: fmt.Sprintf("Copy failed: %v", err)})
		return
	}
	c.setStatus(Status{Kind: StatusSuccess, Text: "Text copied to clipboard"})
}

func (c *Controller) setLanguage(lang string) {
	if lang == "" || lang == c.language {
		return
	}
	c.language = lang
	c.opts.Persister.Save(c.settings())
	if c.state.Active() {
		c.setStatus(Status{Kind: StatusInfo, Text: fmt.Sprintf("Language %s applies to the next recording", lang)})
	}
}

type nopListener struct{}

func (nopListener) StateChanged(State, State) {}
func (nopListener) TextChanged(string)        {}
func (nopListener) StatusChanged(Status)      {}
func (nopListener) Tick(time.Duration)        {}

type nopPersister struct{}

func (nopPersister) Save(store.Settings) {}
func (nopPersister) SaveDraft(string)    {}
