package store

import (
	"context"
	"sync"
	"time"

	"scribe/log"
)

// Storage keys.
const (
	KeyLanguage    = "language"
	KeyPunctuation = "autoPunctuation"
	KeyDraft       = "textDraft"
)

const DefaultDraftDebounce = 2 * time.Second

// Settings is what the panel restores on startup. Empty fields mean the key
// was never saved and the caller's default applies.
type Settings struct {
	Language         string
	PunctuationLevel string
	TextDraft        string
}

func (s Settings) values() map[string]string {
	return map[string]string{
		KeyLanguage:    s.Language,
		KeyPunctuation: s.PunctuationLevel,
		KeyDraft:       s.TextDraft,
	}
}

// Load reads the saved settings. Missing keys are left empty.
func Load(ctx context.Context, kv KV) (Settings, error) {
	m, err := kv.Get(ctx, KeyLanguage, KeyPunctuation, KeyDraft)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Language:         m[KeyLanguage],
		PunctuationLevel: m[KeyPunctuation],
		TextDraft:        m[KeyDraft],
	}, nil
}

// Persister writes settings in the background. Save is fire-and-forget;
// SaveDraft coalesces rapid edits and writes the last one after the
// debounce interval. Writes reach the KV one at a time, in the order they
// were requested.
type Persister struct {
	kv       KV
	debounce time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	idle    *sync.Cond // signalled when the writer drains the queue
	timer   *time.Timer
	pending *string
	queue   []map[string]string
	writing bool
	closed  bool
}

func NewPersister(kv KV, debounce time.Duration) *Persister {
	if debounce <= 0 {
		debounce = DefaultDraftDebounce
	}
	p := &Persister{kv: kv, debounce: debounce, timeout: 5 * time.Second}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Save writes all settings, replacing any pending draft write.
func (p *Persister) Save(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.cancelPendingLocked()
	p.enqueueLocked(s.values())
}

// SaveDraft schedules a draft write after the debounce interval. A later
// call restarts the interval.
func (p *Persister) SaveDraft(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = &text
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, p.flushDraft)
}

func (p *Persister) flushDraft() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushDraftLocked()
}

func (p *Persister) flushDraftLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.pending == nil {
		return
	}
	p.enqueueLocked(map[string]string{KeyDraft: *p.pending})
	p.pending = nil
}

func (p *Persister) cancelPendingLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
}

// enqueueLocked appends a write and starts the writer if it is not running.
func (p *Persister) enqueueLocked(values map[string]string) {
	p.queue = append(p.queue, values)
	if !p.writing {
		p.writing = true
		go p.drain()
	}
}

// drain is the only goroutine that calls kv.Set.
func (p *Persister) drain() {
	p.mu.Lock()
	for len(p.queue) > 0 {
		values := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		p.write(values)
		p.mu.Lock()
	}
	p.writing = false
	p.idle.Broadcast()
	p.mu.Unlock()
}

func (p *Persister) write(values map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.kv.Set(ctx, values); err != nil {
		log.Warnf("settings save failed: %v", err)
	}
}

// Flush writes any pending draft immediately and waits until every queued
// write has reached the KV.
func (p *Persister) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushDraftLocked()
	for p.writing {
		p.idle.Wait()
	}
}

// Close flushes and rejects further writes. It does not close the KV.
func (p *Persister) Close() {
	p.Flush()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
