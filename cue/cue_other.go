//go:build !linux

package cue

import (
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"
)

var (
	initOnce sync.Once
	mctx     *malgo.AllocatedContext

	// one tone at a time; a new cue waits for the previous to finish
	playMu sync.Mutex
)

func play(samples []int16) {
	initOnce.Do(func() {
		c, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err == nil {
			mctx = c
		}
	})
	if mctx == nil {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	var mu sync.Mutex
	pos := 0
	finished := make(chan struct{})
	var finishOnce sync.Once
	onData := func(out, _ []byte, _ uint32) {
		mu.Lock()
		n := copy(out, pcm[pos:])
		pos += n
		done := pos >= len(pcm)
		mu.Unlock()
		clear(out[n:])
		if done {
			finishOnce.Do(func() { close(finished) })
		}
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		return
	}
	<-finished
	dev.Stop()
}
