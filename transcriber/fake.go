package transcriber

import (
	"context"
	"sync"
	"time"

	"mediassist/fault"
)

// FakeTranscriber returns fixed text or a fixed error and records payloads.
type FakeTranscriber struct {
	text  string
	err   error
	delay time.Duration

	mu       sync.Mutex
	payloads [][]byte
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

// WithDelay makes each call wait d or until ctx is cancelled.
func (f *FakeTranscriber) WithDelay(d time.Duration) *FakeTranscriber {
	f.delay = d
	return f
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, append([]byte(nil), pcm...))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fault.New(fault.Transport, "fake", ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.text == "" {
		return nil, fault.New(fault.Rejection, "fake", ErrNoSpeech)
	}
	return &Result{Text: f.text, AudioSeconds: float64(len(pcm)) / 32000}, nil
}

// Payloads returns a copy of every PCM payload received so far.
func (f *FakeTranscriber) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}
