package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"
)

type target struct {
	mu     sync.Mutex
	active bool
	starts int
	stops  int
}

func (t *target) Start() {
	t.mu.Lock()
	t.active = true
	t.starts++
	t.mu.Unlock()
}

func (t *target) Stop() {
	t.mu.Lock()
	t.active = false
	t.stops++
	t.mu.Unlock()
}

func (t *target) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *target) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts, t.stops
}

func waitCounts(t *testing.T, tg *target, starts, stops int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, p := tg.counts(); s == starts && p == stops {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	s, p := tg.counts()
	t.Fatalf("starts=%d stops=%d, want %d/%d", s, p, starts, stops)
}

func watch(t *testing.T, hold time.Duration) (*FakeHotkey, *target) {
	t.Helper()
	fk := NewFake()
	tg := &target{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, fk, hold, tg)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return fk, tg
}

func TestTapToggles(t *testing.T) {
	fk, tg := watch(t, 200*time.Millisecond)

	fk.SimTap()
	waitCounts(t, tg, 1, 0)
	time.Sleep(20 * time.Millisecond)
	if s, p := tg.counts(); s != 1 || p != 0 {
		t.Fatalf("tap stopped recording: starts=%d stops=%d", s, p)
	}

	fk.SimTap()
	waitCounts(t, tg, 1, 1)
}

func TestHoldRecordsUntilRelease(t *testing.T) {
	hold := 30 * time.Millisecond
	fk, tg := watch(t, hold)

	fk.SimKeydown()
	waitCounts(t, tg, 1, 0)
	time.Sleep(hold + 20*time.Millisecond)
	fk.SimKeyup()
	waitCounts(t, tg, 1, 1)
}

func TestTapAfterExternalStopStartsAgain(t *testing.T) {
	fk, tg := watch(t, 200*time.Millisecond)

	fk.SimTap()
	waitCounts(t, tg, 1, 0)
	tg.mu.Lock()
	tg.active = false // recording ended on its own
	tg.mu.Unlock()

	fk.SimTap()
	waitCounts(t, tg, 2, 0)
}
