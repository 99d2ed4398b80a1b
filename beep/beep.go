// Package beep plays short audible cues when recording starts, stops or
// fails.
package beep

import (
	"fmt"
	"math"
	"sync"
)

type Cue int

const (
	CueStart Cue = iota
	CueStop
	CueError
)

func (c Cue) String() string {
	switch c {
	case CueStart:
		return "start"
	case CueStop:
		return "stop"
	case CueError:
		return "error"
	}
	return fmt.Sprintf("Cue(%d)", int(c))
}

const sampleRate = 44100

type tone struct {
	freq    float64
	seconds float64
	volume  float64
	decay   float64
	repeat  int
	gap     float64
}

var tones = map[Cue]tone{
	// high snappy tick
	CueStart: {freq: 1200, seconds: 0.2, volume: 0.5, decay: 60, repeat: 1},
	// lower, slightly longer tick
	CueStop: {freq: 900, seconds: 0.2, volume: 0.5, decay: 40, repeat: 1},
	// low double beep
	CueError: {freq: 350, seconds: 0.08, volume: 0.6, decay: 30, repeat: 2, gap: 0.05},
}

// Samples renders c as mono signed 16-bit PCM at 44.1kHz.
func Samples(c Cue) []int16 {
	t, ok := tones[c]
	if !ok {
		return nil
	}
	n := int(sampleRate * t.seconds)
	gap := int(sampleRate * t.gap)
	out := make([]int16, 0, t.repeat*n+(t.repeat-1)*gap)
	for r := 0; r < t.repeat; r++ {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			sec := float64(i) / sampleRate
			envelope := math.Exp(-sec * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*sec)*32767*t.volume*envelope))
		}
	}
	return out
}

type Player interface {
	Play(c Cue)
}

// Silent drops every cue.
type Silent struct{}

func (Silent) Play(Cue) {}

// Recorder remembers the cues it was asked to play.
type Recorder struct {
	mu   sync.Mutex
	cues []Cue
}

func (r *Recorder) Play(c Cue) {
	r.mu.Lock()
	r.cues = append(r.cues, c)
	r.mu.Unlock()
}

func (r *Recorder) Cues() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cue(nil), r.cues...)
}
