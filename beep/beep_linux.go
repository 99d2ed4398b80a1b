//go:build linux

package beep

import (
	"sync"

	"scribe/log"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulsePlayer struct {
	mu sync.Mutex
}

// New returns a Player backed by the PulseAudio server.
func New() Player { return &pulsePlayer{} }

// Play renders the cue in the background. Cues never overlap.
func (p *pulsePlayer) Play(c Cue) {
	samples := Samples(c)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := playSamples(samples); err != nil {
			log.Warnf("beep %s: %v", c, err)
		}
	}()
}

func playSamples(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName("scribe"))
	if err != nil {
		return err
	}
	defer client.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := client.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
	return stream.Error()
}
