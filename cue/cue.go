// Package cue plays the short tones that mark push-to-talk transitions.
package cue

import (
	"math"
	"sync"
	"sync/atomic"
)

type Sound int

const (
	Start Sound = iota
	Stop
	Failure
)

const sampleRate = 44100

// tone is a decaying sine, played repeat times with gap seconds between.
type tone struct {
	freq     float64
	volume   float64
	decay    float64
	duration float64
	gap      float64
	repeat   int
}

var tones = map[Sound]tone{
	Start:   {freq: 1200, volume: 0.5, decay: 60, duration: 0.2, repeat: 1},
	Stop:    {freq: 900, volume: 0.5, decay: 40, duration: 0.2, repeat: 1},
	Failure: {freq: 350, volume: 0.6, decay: 30, duration: 0.08, gap: 0.05, repeat: 2},
}

var (
	enabled atomic.Bool
	cacheMu sync.Mutex
	cache   = map[Sound][]int16{}
)

// Enable turns playback on. Cues are silent until it is called.
func Enable(on bool) { enabled.Store(on) }

// Play starts s in the background. Playback failures are ignored.
func Play(s Sound) {
	if !enabled.Load() {
		return
	}
	samples := samplesFor(s)
	if len(samples) == 0 {
		return
	}
	go play(samples)
}

func samplesFor(s Sound) []int16 {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if b, ok := cache[s]; ok {
		return b
	}
	t, ok := tones[s]
	if !ok {
		return nil
	}
	b := render(t, sampleRate)
	cache[s] = b
	return b
}

// render produces mono s16 samples for t.
func render(t tone, rate int) []int16 {
	n := int(float64(rate) * t.duration)
	gap := int(float64(rate) * t.gap)

	out := make([]int16, 0, t.repeat*n+max(t.repeat-1, 0)*gap)
	for r := 0; r < t.repeat; r++ {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			x := float64(i) / float64(rate)
			env := math.Exp(-x * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*x)*32767*t.volume*env))
		}
	}
	return out
}
