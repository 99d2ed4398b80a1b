package transcriber

import (
	"sync"
)

// Fake is an in-memory Recognizer. Tests drive its recognitions through
// Interim, Final, Fail and End.
type Fake struct {
	// HoldEnd keeps Stop from emitting EventEnd, so callers see a
	// recognition that never confirms the stop.
	HoldEnd bool
	// OnStart runs in its own goroutine after every successful Start.
	OnStart func(*FakeRecognition)

	mu        sync.Mutex
	startErrs []error
	newErr    error
	instances []*FakeRecognition
	open      int
	maxOpen   int
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Name() string { return "fake" }

// FailStarts makes the next len(errs) Start calls return errs in order;
// a nil entry lets that call succeed.
func (f *Fake) FailStarts(errs ...error) {
	f.mu.Lock()
	f.startErrs = append(f.startErrs, errs...)
	f.mu.Unlock()
}

// FailNew makes every following NewRecognition call return err.
func (f *Fake) FailNew(err error) {
	f.mu.Lock()
	f.newErr = err
	f.mu.Unlock()
}

func (f *Fake) NewRecognition(cfg Config) (Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	r := &FakeRecognition{fake: f, cfg: cfg, events: make(chan Event, 256)}
	f.instances = append(f.instances, r)
	f.open++
	f.maxOpen = max(f.maxOpen, f.open)
	return r, nil
}

// Last returns the most recently created recognition, or nil.
func (f *Fake) Last() *FakeRecognition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.instances) == 0 {
		return nil
	}
	return f.instances[len(f.instances)-1]
}

func (f *Fake) Instances() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instances)
}

// MaxOpen is the largest number of recognitions that were open at once.
func (f *Fake) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

func (f *Fake) nextStartErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.startErrs) == 0 {
		return nil
	}
	err := f.startErrs[0]
	f.startErrs = f.startErrs[1:]
	return err
}

type FakeRecognition struct {
	fake   *Fake
	cfg    Config
	events chan Event

	mu      sync.Mutex
	starts  int
	stops   int
	running bool
	closed  bool
	stopped chan struct{}
	results resultList
}

func (r *FakeRecognition) Config() Config { return r.cfg }

func (r *FakeRecognition) Events() <-chan Event { return r.events }

func (r *FakeRecognition) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	if err := r.fake.nextStartErr(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.starts++
	r.running = true
	r.stopped = make(chan struct{})
	r.results.reset()
	r.mu.Unlock()

	r.send(Event{Kind: EventStart})
	if r.fake.OnStart != nil {
		go r.fake.OnStart(r)
	}
	return nil
}

func (r *FakeRecognition) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.stops++
	close(r.stopped)
	r.stopped = nil
	r.mu.Unlock()

	if !r.fake.HoldEnd {
		r.End()
	}
}

func (r *FakeRecognition) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.running = false
	if r.stopped != nil {
		close(r.stopped)
		r.stopped = nil
	}
	close(r.events)

	r.fake.mu.Lock()
	r.fake.open--
	r.fake.mu.Unlock()
	return nil
}

// Stopped returns a channel closed when the current run is stopped or the
// recognition is closed. It is nil when no run is active.
func (r *FakeRecognition) Stopped() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *FakeRecognition) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *FakeRecognition) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

func (r *FakeRecognition) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *FakeRecognition) Interim(text string) { r.result(text, false) }

func (r *FakeRecognition) Final(text string) { r.result(text, true) }

func (r *FakeRecognition) result(text string, final bool) {
	r.mu.Lock()
	idx, results := r.results.apply(text, final, 1)
	r.mu.Unlock()
	r.send(Event{Kind: EventResult, ResultIndex: idx, Results: results})
}

func (r *FakeRecognition) Fail(code ErrorCode) {
	r.send(Event{Kind: EventError, Code: code, Message: string(code)})
}

// End finishes the current run as if the engine timed out on its own.
func (r *FakeRecognition) End() {
	r.mu.Lock()
	wasRunning := r.running
	r.running = false
	if r.stopped != nil {
		close(r.stopped)
		r.stopped = nil
	}
	r.mu.Unlock()
	if wasRunning {
		r.send(Event{Kind: EventEnd})
	}
}

func (r *FakeRecognition) send(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.events <- ev
}
