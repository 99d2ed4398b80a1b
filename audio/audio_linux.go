//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// PulseAudio sources arrive much quieter than streaming recognizers expect.
const (
	micGain      = 8
	sourceVolume = 3 // times proto.VolumeNorm
	latencySecs  = 0.05
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("scribe"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.SampleRate == 0 {
		config = DefaultCaptureConfig()
	}
	return &pulseCapture{client: p.client, device: device, config: config}, nil
}

func (p *pulseContext) Close() { p.client.Close() }

type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu     sync.Mutex
	stream *pulse.RecordStream
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(latencySecs),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * sourceVolume}
		}),
	}
	if c.device != nil {
		source, err := c.client.SourceByID(c.device.ID)
		if err != nil {
			return Classify(c.device.Name, fmt.Errorf("pulse source: %w", err))
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.deliver), opts...)
	if err != nil {
		return Classify(c.DeviceName(), fmt.Errorf("pulse record: %w", err))
	}
	stream.Start()
	c.stream = stream
	return nil
}

// deliver runs on the pulse client's goroutine for every captured chunk.
func (c *pulseCapture) deliver(buf []int16) (int, error) {
	cb := c.callback.Load()
	if cb == nil || len(buf) == 0 {
		return len(buf), nil
	}
	data := make([]byte, len(buf)*BytesPerFrame)
	amplify(data, buf, micGain)
	(*cb)(data, uint32(len(buf)))
	return len(buf), nil
}

// amplify writes src scaled by gain into dst as little-endian PCM16,
// clipping at the sample limits. dst must hold 2*len(src) bytes.
func amplify(dst []byte, src []int16, gain int32) {
	for i, s := range src {
		v := int32(s) * gain
		v = max(math.MinInt16, min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }
func (c *pulseCapture) ClearCallback()              { c.callback.Store(nil) }

func (c *pulseCapture) DeviceName() string { return c.device.String() }
