package audio

import (
	"sync"
	"time"
)

const fakeChunkFrames = 320 // 20ms at 16 kHz

// FakeContext hands out captures that emit silence. NewCaptureErr and
// StartErr let tests simulate a refused or broken microphone.
type FakeContext struct {
	NewCaptureErr error
	StartErr      error
	DeviceList    []DeviceInfo

	mu      sync.Mutex
	opened  int
	started int
}

func NewFakeContext() *FakeContext {
	return &FakeContext{DeviceList: []DeviceInfo{{ID: "fake", Name: "fake"}}}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.DeviceList, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewCaptureErr != nil {
		return nil, f.NewCaptureErr
	}
	f.opened++
	return &FakeCapture{parent: f, device: device}, nil
}

// SetStartErr changes StartErr while captures may be starting on other
// goroutines.
func (f *FakeContext) SetStartErr(err error) {
	f.mu.Lock()
	f.StartErr = err
	f.mu.Unlock()
}

// Started reports how many captures have been started successfully.
func (f *FakeContext) Started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

type FakeCapture struct {
	parent *FakeContext
	device *DeviceInfo

	mu     sync.Mutex
	cb     DataCallback
	stopCh chan struct{}
	done   chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string {
	if f.device != nil {
		return f.device.Name
	}
	return "fake"
}

func (f *FakeCapture) Start() error {
	f.parent.mu.Lock()
	if err := f.parent.StartErr; err != nil {
		f.parent.mu.Unlock()
		return err
	}
	f.parent.started++
	f.parent.mu.Unlock()

	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})
	stopCh, done := f.stopCh, f.done
	f.mu.Unlock()

	interval := time.Duration(fakeChunkFrames) * time.Second / SampleRate
	go func() {
		defer close(done)
		silence := make([]byte, fakeChunkFrames*BytesPerFrame)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(silence, fakeChunkFrames)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, done := f.stopCh, f.done
	f.stopCh = nil
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (f *FakeCapture) Close() { f.Stop() }
