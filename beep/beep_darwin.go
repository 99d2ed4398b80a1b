//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"scribe/log"

	"github.com/gen2brain/malgo"
)

// malgoPlayer keeps one playback device open and swaps the buffer it reads
// from on every cue.
type malgoPlayer struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	samples atomic.Pointer[[]byte]
	pos     atomic.Uint32
}

// New returns a Player backed by miniaudio.
func New() Player { return &malgoPlayer{} }

func (p *malgoPlayer) init() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: init audio context: %v", err)
		return
	}
	p.ctx = ctx
	if err := p.initDevice(); err != nil {
		log.Warnf("beep: init playback device: %v", err)
		ctx.Uninit()
		p.ctx = nil
	}
}

func (p *malgoPlayer) initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	device, err := malgo.InitDevice(p.ctx.Context, config, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		return err
	}
	p.device = device
	return nil
}

func (p *malgoPlayer) fill(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	written := uint32(0)
	if samples := p.samples.Load(); samples != nil {
		pos := p.pos.Load()
		if rest := uint32(len(*samples)) - pos; rest > 0 {
			written = min(want, rest)
			copy(out[:written], (*samples)[pos:pos+written])
			p.pos.Store(pos + written)
		} else {
			p.samples.Store(nil)
		}
	}
	clear(out[written:want])
}

func (p *malgoPlayer) Play(c Cue) {
	p.once.Do(p.init)
	if p.ctx == nil {
		return
	}
	pcm := toBytes(Samples(c))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.device.Stop()
	p.pos.Store(0)
	p.samples.Store(&pcm)
	if err := p.device.Start(); err != nil {
		// the device goes stale across sleep/wake, rebuild it once
		p.device.Uninit()
		if err := p.initDevice(); err != nil {
			log.Warnf("beep %s: %v", c, err)
			p.samples.Store(nil)
			return
		}
		if err := p.device.Start(); err != nil {
			log.Warnf("beep %s: %v", c, err)
			p.samples.Store(nil)
		}
	}
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
